package gaps

import (
	"sort"
	"time"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

// Detect returns the expected slots that storage does not satisfy.
//
// With an empty column a slot is satisfied by any stored record with the same
// slot key. With a column, the stored value must also be non-blank; numeric
// zero is a settled value and satisfies the slot. When the stored schema lacks
// the column, every expected slot is missing.
func Detect(expected []domain.Slot, stored domain.Snapshot, column string) []domain.Slot {
	if column != "" && !stored.HasColumn(column) {
		return append([]domain.Slot(nil), expected...)
	}

	present := make(map[domain.SlotKey]struct{}, len(stored.Records))
	for _, rec := range stored.Records {
		if column != "" {
			value, ok := rec.Column(column)
			if !ok || value.IsBlank() {
				continue
			}
		}
		present[rec.SlotKey()] = struct{}{}
	}

	missing := make([]domain.Slot, 0)
	for _, slot := range expected {
		if _, ok := present[slot.Key()]; ok {
			continue
		}
		missing = append(missing, slot)
	}
	return missing
}

// MissingDates returns the sorted distinct operating dates of the slots.
func MissingDates(slots []domain.Slot, loc *time.Location) []time.Time {
	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, slot := range slots {
		date := domain.OperatingDate(slot.HourEnding, loc)
		if _, ok := seen[date]; ok {
			continue
		}
		seen[date] = struct{}{}
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Index returns the slots keyed for membership checks.
func Index(slots []domain.Slot) map[domain.SlotKey]domain.Slot {
	idx := make(map[domain.SlotKey]domain.Slot, len(slots))
	for _, slot := range slots {
		idx[slot.Key()] = slot
	}
	return idx
}
