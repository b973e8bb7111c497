package batch

import (
	"fmt"
	"sort"
	"time"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

const isoDate = "2006-01-02"

// Range is a query window of civil dates; End is exclusive.
type Range struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of dates covered.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

func (r Range) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(isoDate), r.End.Format(isoDate))
}

// Plan merges dates into contiguous runs, then splits runs so no range spans
// chunkDays or more days from its first date. chunkDays <= 0 disables splitting.
func Plan(dates []time.Time, chunkDays int) []Range {
	days := normalize(dates)
	if len(days) == 0 {
		return nil
	}

	var groups [][]time.Time
	current := []time.Time{days[0]}
	for _, day := range days[1:] {
		if day.Equal(current[len(current)-1].AddDate(0, 0, 1)) {
			current = append(current, day)
			continue
		}
		groups = append(groups, current)
		current = []time.Time{day}
	}
	groups = append(groups, current)

	if chunkDays > 0 {
		var chunked [][]time.Time
		for _, group := range groups {
			chunked = append(chunked, chunk(group, chunkDays)...)
		}
		groups = chunked
	}

	ranges := make([]Range, 0, len(groups))
	for _, group := range groups {
		ranges = append(ranges, Range{Start: group[0], End: group[len(group)-1].AddDate(0, 0, 1)})
	}
	return ranges
}

func chunk(group []time.Time, chunkDays int) [][]time.Time {
	var out [][]time.Time
	current := []time.Time{group[0]}
	for _, day := range group[1:] {
		if int(day.Sub(current[0]).Hours()/24) >= chunkDays {
			out = append(out, current)
			current = []time.Time{day}
			continue
		}
		current = append(current, day)
	}
	return append(out, current)
}

func normalize(dates []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := domain.DateOf(d)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
