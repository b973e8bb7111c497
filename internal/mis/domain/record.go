package domain

import (
	"fmt"
	"sort"
	"time"
)

// IntervalSeconds is the width of every hourly record.
const IntervalSeconds = 3600

// Volume column names in the hourly tables.
const (
	ColumnDA = "da_volume"
	ColumnRT = "rt_volume"
)

// Record is one normalized hourly observation.
type Record struct {
	HourEnding      time.Time
	Asset           string
	Name            string
	OpsType         string
	Service         string
	DAVolume        Value
	RTVolume        Value
	Unit            string
	IntervalSeconds int
}

// Key is the composite primary key of a stored record.
type Key struct {
	HourEnding int64
	Asset      string
	Name       string
	OpsType    string
	Service    string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", time.Unix(k.HourEnding, 0).UTC().Format(time.RFC3339), k.Asset, k.Name, k.OpsType, k.Service)
}

// SlotKey identifies an expected calendar slot. Slots are keyed by source
// name since the calendar does not know internal asset names.
type SlotKey struct {
	HourEnding int64
	Name       string
	OpsType    string
	Service    string
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", time.Unix(k.HourEnding, 0).UTC().Format(time.RFC3339), k.Name, k.OpsType, k.Service)
}

// Key returns the composite key of the record.
func (r Record) Key() Key {
	return Key{
		HourEnding: r.HourEnding.Round(time.Second).Unix(),
		Asset:      r.Asset,
		Name:       r.Name,
		OpsType:    r.OpsType,
		Service:    r.Service,
	}
}

// SlotKey returns the calendar slot the record fills.
func (r Record) SlotKey() SlotKey {
	return SlotKey{
		HourEnding: r.HourEnding.Round(time.Second).Unix(),
		Name:       r.Name,
		OpsType:    r.OpsType,
		Service:    r.Service,
	}
}

// Column returns the value stored in a volume column.
func (r Record) Column(name string) (Value, bool) {
	switch name {
	case ColumnDA:
		return r.DAVolume, true
	case ColumnRT:
		return r.RTVolume, true
	default:
		return Blank(), false
	}
}

// Slot is one expected (hour-ending, name, ops type, service) observation.
type Slot struct {
	HourEnding time.Time
	Name       string
	OpsType    string
	Service    string
}

// Key returns the slot identity.
func (s Slot) Key() SlotKey {
	return SlotKey{
		HourEnding: s.HourEnding.Round(time.Second).Unix(),
		Name:       s.Name,
		OpsType:    s.OpsType,
		Service:    s.Service,
	}
}

// Snapshot is the stored state of a table for a date range.
// Columns lists the columns present in the stored schema.
type Snapshot struct {
	Columns map[string]bool
	Records []Record
}

// HasColumn reports whether the stored schema carries the column.
func (s Snapshot) HasColumn(name string) bool {
	return s.Columns != nil && s.Columns[name]
}

// SortRecords orders records by hour ending, service, then the remaining key fields.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.HourEnding.Equal(b.HourEnding) {
			return a.HourEnding.Before(b.HourEnding)
		}
		if a.Service != b.Service {
			return a.Service < b.Service
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Asset != b.Asset {
			return a.Asset < b.Asset
		}
		return a.OpsType < b.OpsType
	})
}

// DuplicateKeys returns every key that occurs more than once, in first-seen order.
func DuplicateKeys(records []Record) []Key {
	seen := make(map[Key]int, len(records))
	var dups []Key
	for _, rec := range records {
		key := rec.Key()
		seen[key]++
		if seen[key] == 2 {
			dups = append(dups, key)
		}
	}
	return dups
}
