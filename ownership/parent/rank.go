// Package parent picks the operating parent of a subsidiary from its
// disclosed owners.
package parent

import "github.com/caremarket/parentry/ownership"

// Tier orders parent candidates; lower is better.
type Tier int

const (
	// TierIndirect is an ultimate owner, the best stand-in for the operating brand
	TierIndirect Tier = 1
	// TierDirect is the immediate legal parent
	TierDirect Tier = 2
	// TierOperational covers operational and managerial control
	TierOperational Tier = 3
	// TierOther is any other non-investment role
	TierOther Tier = 4
	// TierInvestment marks capital providers; never a candidate
	TierInvestment Tier = 99
	// TierNone is reported when no candidate exists
	TierNone Tier = 0
)

// Priority ranks a record as a parent candidate.
func Priority(record ownership.OwnershipRecord, investment bool) Tier {
	if investment {
		return TierInvestment
	}
	switch record.Role {
	case ownership.RoleIndirect:
		return TierIndirect
	case ownership.RoleDirect:
		return TierDirect
	case ownership.RoleOperational, ownership.RoleManagerial:
		return TierOperational
	default:
		return TierOther
	}
}
