package calendar

import (
	"errors"
	"sort"
	"time"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

// Boundaries returns every hour-ending instant from start+1h through local
// midnight after end, stepping in elapsed hours. The first boundary after a
// spring-forward gap is stored as HH:59:59, so it is rewritten that way here.
func Boundaries(start, end time.Time, loc *time.Location) ([]time.Time, error) {
	if loc == nil {
		return nil, errors.New("calendar: nil location")
	}
	start, end = domain.DateOf(start), domain.DateOf(end)
	if end.Before(start) {
		return nil, errors.New("calendar: end date before start date")
	}
	first := domain.Midnight(start, loc)
	last := domain.Midnight(end.AddDate(0, 0, 1), loc)

	out := make([]time.Time, 0, int(last.Sub(first)/time.Hour))
	var prev time.Time
	for t := first.Add(time.Hour); !t.After(last); t = t.Add(time.Hour) {
		local := t.In(loc)
		boundary := local
		if !prev.IsZero() && sameDate(prev, local) && local.Hour()-prev.Hour() > 1 {
			boundary = time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 59, 59, 0, loc)
		}
		prev = local
		out = append(out, boundary.Round(time.Second))
	}
	return out, nil
}

// Generate builds the expected calendar for the asset universe. The result is
// ordered by (hour ending, name, ops type, service) and has unique slot keys.
func Generate(start, end time.Time, loc *time.Location, combos []domain.Combo) ([]domain.Slot, error) {
	boundaries, err := Boundaries(start, end, loc)
	if err != nil {
		return nil, err
	}
	slots := make([]domain.Slot, 0, len(boundaries)*len(combos))
	seen := make(map[domain.SlotKey]struct{}, cap(slots))
	for _, combo := range combos {
		for _, boundary := range boundaries {
			slot := domain.Slot{HourEnding: boundary, Name: combo.Name, OpsType: combo.OpsType, Service: combo.Service}
			key := slot.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			slots = append(slots, slot)
		}
	}
	SortSlots(slots)
	return slots, nil
}

// SortSlots orders slots by hour ending, then name, ops type and service.
func SortSlots(slots []domain.Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if !a.HourEnding.Equal(b.HourEnding) {
			return a.HourEnding.Before(b.HourEnding)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.OpsType != b.OpsType {
			return a.OpsType < b.OpsType
		}
		return a.Service < b.Service
	})
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
