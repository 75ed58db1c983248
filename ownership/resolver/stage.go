package resolver

import (
	"fmt"

	"github.com/caremarket/parentry/ownership"
)

// Stage names a step of the per-subsidiary pipeline.
type Stage string

const (
	StageFetchSubsidiaries Stage = "FETCH_SUBSIDIARIES"
	StageFetchOwners       Stage = "FETCH_OWNERS"
	StageClassifyAndRank   Stage = "CLASSIFY_AND_RANK"
	StageSelectParent      Stage = "SELECT_PARENT"
	StageWriteSubsidiary   Stage = "WRITE_SUBSIDIARY"
	StageWriteVariants     Stage = "WRITE_VARIANTS"
	StageSummary           Stage = "SUMMARY"
)

// RowError is a failure confined to one subsidiary. The subsidiary is
// counted as skipped and the run continues.
type RowError struct {
	Key   ownership.SubsidiaryKey
	Stage Stage
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Key, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}
