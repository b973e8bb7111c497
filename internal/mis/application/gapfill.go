package application

import (
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

// gapFill synthesizes placeholders for slots that were missing and are still
// absent, limited to the hour-ending span covered by records. It never
// extrapolates past the first or last fetched hour.
func gapFill(target domain.Target, missing []domain.Slot, records []domain.Record, mapping *domain.MappingTable, policy domain.UnmappedPolicy) []domain.Record {
	if len(records) == 0 || len(missing) == 0 {
		return nil
	}
	first, last := records[0].HourEnding, records[0].HourEnding
	present := make(map[domain.SlotKey]struct{}, len(records))
	for _, rec := range records {
		if rec.HourEnding.Before(first) {
			first = rec.HourEnding
		}
		if rec.HourEnding.After(last) {
			last = rec.HourEnding
		}
		present[rec.SlotKey()] = struct{}{}
	}

	var out []domain.Record
	for _, slot := range missing {
		if slot.HourEnding.Before(first) || slot.HourEnding.After(last) {
			continue
		}
		if _, ok := present[slot.Key()]; ok {
			continue
		}
		entry, ok := mapping.FirstByName(slot.Name)
		if !ok && policy == domain.UnmappedDrop {
			continue
		}
		out = append(out, target.Placeholder(slot, entry.Asset))
	}
	return out
}
