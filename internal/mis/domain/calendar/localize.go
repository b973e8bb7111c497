package calendar

import (
	"fmt"
	"time"
)

// HourEnding converts a report's (operating date, hour ending) pair to an
// instant. The hour is localized as hour-beginning: an ambiguous wall time
// resolves to the earlier UTC instant unless secondOccurrence is set, and a
// nonexistent wall time shifts back to the last whole second before the gap.
func HourEnding(date time.Time, he int, secondOccurrence bool, loc *time.Location) (time.Time, error) {
	if he < 1 || he > 24 {
		return time.Time{}, fmt.Errorf("calendar: hour ending %d out of range", he)
	}
	if loc == nil {
		return time.Time{}, fmt.Errorf("calendar: nil location")
	}
	begin := Localize(date.Year(), date.Month(), date.Day(), he-1, 0, 0, loc, secondOccurrence)
	return begin.Add(time.Hour).Round(time.Second), nil
}

// Localize resolves a wall-clock time in loc. When the wall time occurs
// twice, later selects the second occurrence.
func Localize(year int, month time.Month, day, hour, minute, sec int, loc *time.Location, later bool) time.Time {
	t := time.Date(year, month, day, hour, minute, sec, 0, loc)
	want := wall{year, month, day, hour, minute, sec}
	if !want.matches(t) {
		return lastBeforeGap(t, loc)
	}
	if alt := t.Add(time.Hour); want.matches(alt) {
		if later {
			return alt
		}
		return t
	}
	if alt := t.Add(-time.Hour); want.matches(alt) {
		if later {
			return t
		}
		return alt
	}
	return t
}

type wall struct {
	year   int
	month  time.Month
	day    int
	hour   int
	minute int
	sec    int
}

func (w wall) matches(t time.Time) bool {
	y, m, d := t.Date()
	return y == w.year && m == w.month && d == w.day && t.Hour() == w.hour && t.Minute() == w.minute && t.Second() == w.sec
}

// lastBeforeGap finds the offset change near t and returns the last second
// that still carries the pre-transition offset.
func lastBeforeGap(t time.Time, loc *time.Location) time.Time {
	lo := t.Unix() - 3*3600
	hi := t.Unix() + 3*3600
	_, offLo := time.Unix(lo, 0).In(loc).Zone()
	if _, offHi := time.Unix(hi, 0).In(loc).Zone(); offHi == offLo {
		return t.Truncate(time.Second)
	}
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if _, off := time.Unix(mid, 0).In(loc).Zone(); off == offLo {
			lo = mid
		} else {
			hi = mid
		}
	}
	return time.Unix(lo, 0).In(loc)
}
