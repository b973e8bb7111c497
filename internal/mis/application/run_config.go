package application

import (
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

// ErrInvalidRange is returned when a requested end date precedes its start.
var ErrInvalidRange = errors.New("mis: invalid date range")

// RunConfig is everything one reconciliation pass needs to know.
type RunConfig struct {
	RunID        string
	Target       domain.Target
	Start        time.Time
	End          time.Time
	Location     *time.Location
	Workers      int
	GapFill      bool
	Unmapped     domain.UnmappedPolicy
	BaseURL      string
	Organization string
}

// RunRequest names a target and an optional date range.
type RunRequest struct {
	Table  string
	Report string
	Start  *time.Time
	End    *time.Time
}

// NewRunConfig resolves a request against the process configuration. The
// start date defaults to the target's first date; the end date defaults to
// two days before today in the operating zone.
func (c Config) NewRunConfig(runID string, req RunRequest, now time.Time) (RunConfig, error) {
	target, err := domain.ResolveTarget(req.Table, req.Report)
	if err != nil {
		return RunConfig{}, err
	}
	loc, err := c.Location()
	if err != nil {
		return RunConfig{}, err
	}
	start := target.DefaultStart
	if req.Start != nil {
		start = domain.DateOf(*req.Start)
	}
	end := domain.DateOf(now.In(loc)).AddDate(0, 0, -2)
	if req.End != nil {
		end = domain.DateOf(*req.End)
	}
	if end.Before(start) {
		return RunConfig{}, fmt.Errorf("%w: end date %s before start date %s", ErrInvalidRange, end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	return RunConfig{
		RunID:        runID,
		Target:       target,
		Start:        start,
		End:          end,
		Location:     loc,
		Workers:      workers,
		GapFill:      c.GapFill,
		Unmapped:     c.UnmappedPolicy(),
		BaseURL:      c.Pharos.BaseURL,
		Organization: c.Pharos.Organization,
	}, nil
}

func (rc RunConfig) validate() error {
	if rc.Location == nil {
		return eris.New("run: nil location")
	}
	if rc.Target.Table == "" {
		return eris.New("run: missing target")
	}
	if rc.End.Before(rc.Start) {
		return eris.New("run: end date before start date")
	}
	return nil
}
