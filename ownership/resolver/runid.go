package resolver

import (
	"time"

	"github.com/google/uuid"
)

// NewRunID returns a sortable run identifier such as
// run_20250301_100000_1f2e3d4c.
func NewRunID(now time.Time) string {
	return "run_" + now.UTC().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}
