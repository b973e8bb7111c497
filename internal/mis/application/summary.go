package application

import (
	"time"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

// Run states.
const (
	StateLoadExisting = "LOAD_EXISTING"
	StateDetectGaps   = "DETECT_GAPS"
	StatePlanBatches  = "PLAN_BATCHES"
	StateFetch        = "FETCH"
	StateParse        = "PARSE"
	StateDeduplicate  = "DEDUPLICATE"
	StateGapFill      = "GAP_FILL"
	StateGuard        = "GUARD"
	StateUpsert       = "UPSERT"
	StateDone         = "DONE"
	StateFailed       = "FAILED"
)

// Run outcomes recorded in the summary.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Transition is one entered state.
type Transition struct {
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

// BatchFailure describes a batch whose fetch failed.
type BatchFailure struct {
	Range string `json:"range"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Summary is the structured outcome of one run.
type Summary struct {
	RunID                string         `json:"run_id"`
	Table                string         `json:"table"`
	Report               string         `json:"report"`
	StartDate            string         `json:"start_date"`
	EndDate              string         `json:"end_date"`
	Status               string         `json:"status"`
	Error                string         `json:"error,omitempty"`
	States               []Transition   `json:"states"`
	TableExisted         bool           `json:"table_existed"`
	StoredRecords        int            `json:"stored_records"`
	ExpectedSlots        int            `json:"expected_slots"`
	MissingSlots         int            `json:"missing_slots"`
	MissingDates         int            `json:"missing_dates"`
	Batches              int            `json:"batches"`
	FailedBatches        []BatchFailure `json:"failed_batches,omitempty"`
	RowsFetched          int            `json:"rows_fetched"`
	RowsParsed           int            `json:"rows_parsed"`
	RowsUnmapped         int            `json:"rows_unmapped"`
	VersionDuplicates    int            `json:"version_duplicates"`
	RowsDeduplicated     int            `json:"rows_deduplicated"`
	RowsAfterDedup       int            `json:"rows_after_dedup"`
	ZeroOverwrites       int            `json:"zero_overwrites"`
	ZeroOverwriteSamples []string       `json:"zero_overwrite_samples,omitempty"`
	GapFilled            int            `json:"gap_filled"`
	RowsWritten          int            `json:"rows_written"`
	Warnings             []string       `json:"warnings,omitempty"`
	StartedAt            time.Time      `json:"started_at"`
	FinishedAt           time.Time      `json:"finished_at"`

	// Records holds what was written, for report export.
	Records []domain.Record `json:"-"`
}

// State returns the last entered state.
func (s *Summary) State() string {
	if s == nil || len(s.States) == 0 {
		return ""
	}
	return s.States[len(s.States)-1].State
}

// Counts returns the headline counters.
func (s *Summary) Counts() map[string]int {
	return map[string]int{
		"missing_slots":  s.MissingSlots,
		"batches":        s.Batches,
		"failed_batches": len(s.FailedBatches),
		"rows_fetched":   s.RowsFetched,
		"rows_after":     s.RowsAfterDedup,
		"gap_filled":     s.GapFilled,
		"rows_written":   s.RowsWritten,
	}
}

// NeedsAttention reports whether an operator should look at the run.
func (s *Summary) NeedsAttention() bool {
	return s.Status == StatusFailed || len(s.FailedBatches) > 0 || s.ZeroOverwrites > 0
}
