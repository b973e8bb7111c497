package domain

import (
	"fmt"
	"strings"
	"time"
)

// Supported tables.
const (
	TableEnergy    = "ops.isone_hourly_energy"
	TableAncillary = "ops.isone_hourly_ancillary"
)

// Supported MIS reports.
const (
	ReportRTLocSum   = "SR_RTLOCSUM"
	ReportDAAS       = "SD_DAASCLEARED"
	ReportRTReserve  = "OI_UNITRTRSV"
	ServiceEnergy    = "Energy"
	UnitMW           = "MW"
	UnitMWh          = "MWh"
	OpsTypePumping   = "Pumping"
	OpsTypeGenerator = "Generation"
)

// ChunkDaysHighVolume bounds a single query for sub-hourly reports.
const ChunkDaysHighVolume = 30

var ancillaryNames = []string{
	"NORTHFIELD MOUNTAIN 1", "NORTHFIELD MOUNTAIN 2", "NORTHFIELD MOUNTAIN 3", "NORTHFIELD MOUNTAIN 4",
	"NORTHFIELD MOUNTAIN PUMP 1", "NORTHFIELD MOUNTAIN PUMP 2", "NORTHFIELD MOUNTAIN PUMP 3", "NORTHFIELD MOUNTAIN PUMP 4",
	"CABOT", "ROCKY RIVER", "ROCKY RIVER PUMP 1-2",
}

var energyNames = []string{
	"NORTHFIELD MOUNTAIN PUMP 1", "NORTHFIELD MOUNTAIN PUMP 2", "NORTHFIELD MOUNTAIN PUMP 3", "NORTHFIELD MOUNTAIN PUMP 4",
	"ROCKY RIVER PUMP 1-2", "BULLS BRIDGE", "FALLS VILLAGE", "CABOT", "TURNERSFALLS",
	"NORTHFIELD MOUNTAIN 1", "NORTHFIELD MOUNTAIN 2", "NORTHFIELD MOUNTAIN 3", "NORTHFIELD MOUNTAIN 4",
	"ROCKY RIVER", "SHEPAUG", "STEVENSON", "TUNNEL 10", "NORTHFIELD SOLAR", "ROBERTSVILLE", "SCOTLAND_TAFTVILLE",
}

// Combo is one (name, ops type, service) member of an asset universe.
type Combo struct {
	Name    string
	OpsType string
	Service string
}

// Target describes how one (table, report) pair is reconciled.
type Target struct {
	Table             string
	Report            string
	Names             []string
	Services          []string
	UpdateColumns     []string
	GapColumn         string
	Unit              string
	DefaultStart      time.Time
	MostRecentVersion bool
	ChunkDays         int
}

// OpsTypeFor derives the operation type from a source name.
func OpsTypeFor(name string) string {
	if strings.Contains(name, "PUMP") {
		return OpsTypePumping
	}
	return OpsTypeGenerator
}

// DefaultReport returns the report used when only a table is given.
func DefaultReport(table string) string {
	switch table {
	case TableEnergy:
		return ReportRTLocSum
	case TableAncillary:
		return ReportDAAS
	default:
		return ""
	}
}

// ResolveTarget validates a table/report pair before any I/O happens.
func ResolveTarget(table, report string) (Target, error) {
	if report == "" {
		report = DefaultReport(table)
	}
	switch table {
	case TableEnergy:
		if report != ReportRTLocSum {
			return Target{}, fmt.Errorf("%w: table %s expects report %s, got %q", ErrUnsupportedTarget, table, ReportRTLocSum, report)
		}
		return Target{
			Table:             table,
			Report:            report,
			Names:             append([]string(nil), energyNames...),
			Services:          []string{ServiceEnergy},
			UpdateColumns:     []string{ColumnDA, ColumnRT},
			Unit:              UnitMWh,
			DefaultStart:      Date(2016, time.May, 11),
			MostRecentVersion: true,
		}, nil
	case TableAncillary:
		target := Target{
			Table:             table,
			Report:            report,
			Names:             append([]string(nil), ancillaryNames...),
			Unit:              UnitMW,
			DefaultStart:      Date(2025, time.March, 1),
			MostRecentVersion: true,
		}
		switch report {
		case ReportDAAS:
			target.Services = []string{"TMNSR", "TMSR", "TMOR", "EIR"}
			target.UpdateColumns = []string{ColumnDA}
			target.GapColumn = ColumnDA
		case ReportRTReserve:
			target.Services = []string{"TMNSR", "TMSR", "TMOR"}
			target.UpdateColumns = []string{ColumnRT}
			target.GapColumn = ColumnRT
			target.MostRecentVersion = false
			target.ChunkDays = ChunkDaysHighVolume
		default:
			return Target{}, fmt.Errorf("%w: table %s expects report %s or %s, got %q", ErrUnsupportedTarget, table, ReportDAAS, ReportRTReserve, report)
		}
		return target, nil
	default:
		return Target{}, fmt.Errorf("%w: table %q (supported: %s, %s)", ErrUnsupportedTarget, table, TableAncillary, TableEnergy)
	}
}

// Combos returns the asset universe as (name, ops type, service) combinations.
func (t Target) Combos() []Combo {
	combos := make([]Combo, 0, len(t.Names)*len(t.Services))
	for _, name := range t.Names {
		for _, service := range t.Services {
			combos = append(combos, Combo{Name: name, OpsType: OpsTypeFor(name), Service: service})
		}
	}
	return combos
}

// Placeholder builds the zero-valued record used to fill a residual gap.
func (t Target) Placeholder(slot Slot, asset string) Record {
	rec := Record{
		HourEnding:      slot.HourEnding,
		Asset:           asset,
		Name:            slot.Name,
		OpsType:         slot.OpsType,
		Service:         slot.Service,
		DAVolume:        Blank(),
		RTVolume:        Blank(),
		Unit:            t.Unit,
		IntervalSeconds: IntervalSeconds,
	}
	for _, column := range t.UpdateColumns {
		switch column {
		case ColumnDA:
			rec.DAVolume = Numeric(0)
		case ColumnRT:
			rec.RTVolume = Numeric(0)
		}
	}
	return rec
}
