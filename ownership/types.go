// Package ownership holds the shared types of the entity-resolution engine:
// raw ownership disclosures, resolved subsidiaries, and name variants.
package ownership

import (
	"regexp"
	"strings"
	"time"
)

// Role is the disclosed relationship between an owner and a subsidiary.
type Role string

const (
	RoleIndirect    Role = "INDIRECT"
	RoleDirect      Role = "DIRECT"
	RoleOperational Role = "OPERATIONAL"
	RoleManagerial  Role = "MANAGERIAL"
	RoleOther       Role = "OTHER"
)

// Role keywords are matched as whole words so "DIRECTOR" is not a DIRECT owner.
var (
	indirectWord    = regexp.MustCompile(`\bINDIRECT\b`)
	directWord      = regexp.MustCompile(`\bDIRECT\b`)
	operationalWord = regexp.MustCompile(`\bOPERATIONAL\b`)
	managerialWord  = regexp.MustCompile(`\bMANAG(?:ERIAL|ING)\b`)
)

// ParseRole maps free-text disclosure wording to a Role.
func ParseRole(text string) Role {
	upper := strings.ToUpper(text)
	switch {
	case indirectWord.MatchString(upper):
		return RoleIndirect
	case directWord.MatchString(upper):
		return RoleDirect
	case operationalWord.MatchString(upper):
		return RoleOperational
	case managerialWord.MatchString(upper):
		return RoleManagerial
	default:
		return RoleOther
	}
}

// OwnershipRecord is one disclosed owner of a subsidiary. Records are
// ephemeral run input and are never mutated by resolution.
type OwnershipRecord struct {
	SubsidiaryName string
	OwnerName      string
	Role           Role
	// Percentage is nil when the disclosure omits it
	Percentage         *float64
	PEFlag             bool
	REITFlag           bool
	InvestmentFirmFlag bool
}

// Flagged reports whether any source flag marks the owner as a capital provider.
func (r OwnershipRecord) Flagged() bool {
	return r.PEFlag || r.REITFlag || r.InvestmentFirmFlag
}

// Source records who owns a registry row.
type Source string

const (
	SourceAuto   Source = "auto"
	SourceManual Source = "manual"
)

// SubsidiaryKey identifies a registry row.
type SubsidiaryKey struct {
	Name     string
	CareType string
}

func (k SubsidiaryKey) String() string {
	return k.CareType + "/" + k.Name
}

// SubsidiaryInput is a subsidiary as seen in one dataset version: its
// facility rows grouped under a normalized name.
type SubsidiaryInput struct {
	Key SubsidiaryKey
	// RawNames are the spellings used by facility and ownership rows
	RawNames    []string
	AgencyCount int
	States      []string
	DBANames    []string
}

// Subsidiary is a row of the subsidiary registry.
type Subsidiary struct {
	Key              SubsidiaryKey
	CanonicalParent  *string
	ParentRole       Role
	ParentPercentage *float64
	AgencyCount      int
	States           []string
	DBANames         []string
	// PEInvestors is nil when no investment entity was disclosed
	PEInvestors []string
	Verified    bool
	Source      Source
	LastRunID   string
	DatasetID   string
	UpdatedAt   time.Time
}

// Variant contexts written by the engine
const (
	ContextParent     = "ownership_parent"
	ContextSubsidiary = "ownership_subsidiary"
	ContextInvestor   = "ownership_investor"
)

// NameVariant maps a raw spelling seen in a context to its canonical name.
type NameVariant struct {
	VariantName   string
	SourceContext string
	CanonicalName string
	LastRunID     string
	UpdatedAt     time.Time
}

// DatasetStatus is the import state of an ownership extract.
type DatasetStatus string

const (
	DatasetPending   DatasetStatus = "pending"
	DatasetCompleted DatasetStatus = "completed"
	DatasetFailed    DatasetStatus = "failed"
)

// DatasetVersion is one imported ownership extract.
type DatasetVersion struct {
	ID          string
	Status      DatasetStatus
	ImportedAt  time.Time
	RecordCount int
}

// RunStatus is the lifecycle state of a resolution run.
type RunStatus string

const (
	RunRunning             RunStatus = "running"
	RunCompleted           RunStatus = "completed"
	RunCompletedWithErrors RunStatus = "completed_with_errors"
	RunCancelled           RunStatus = "cancelled"
	RunFailed              RunStatus = "failed"
)

// RunCounts are the terminal counts of a resolution run.
type RunCounts struct {
	Processed        int `json:"processed"`
	Assigned         int `json:"assigned"`
	Orphaned         int `json:"orphaned"`
	Skipped          int `json:"skipped"`
	Protected        int `json:"manual_protected"`
	UniqueParents    int `json:"unique_parents"`
	DistinctStates   int `json:"distinct_states"`
	VariantsRecorded int `json:"variants_recorded"`
	VariantDrift     int `json:"variant_drift"`
	Swept            int `json:"swept"`
}

// Run is an entry of the resolution run log.
type Run struct {
	ID          string
	DatasetID   string
	CareType    string
	Status      RunStatus
	DryRun      bool
	StartedAt   time.Time
	CompletedAt *time.Time
	Counts      RunCounts
	Errors      []string
}
