// Package parsers turns raw MIS report tables into canonical hourly records.
package parsers

import (
	"errors"
	"fmt"
	"time"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

// Options controls a parse.
type Options struct {
	Location *time.Location
	Unmapped domain.UnmappedPolicy
}

// Result is the outcome of parsing one or more raw tables.
type Result struct {
	Records           []domain.Record
	Warnings          []string
	RowsIn            int
	RowsDropped       int
	DuplicatesRemoved int
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Parser converts raw tables for one report into canonical records.
type Parser interface {
	Parse(tables []domain.RawTable, mapping *domain.MappingTable, opts Options) (Result, error)
}

// Func adapts a function to the Parser interface.
type Func func(tables []domain.RawTable, mapping *domain.MappingTable, opts Options) (Result, error)

// Parse calls f.
func (f Func) Parse(tables []domain.RawTable, mapping *domain.MappingTable, opts Options) (Result, error) {
	return f(tables, mapping, opts)
}

// ForReport returns the parser registered for an MIS report.
func ForReport(report string) (Parser, error) {
	switch report {
	case domain.ReportRTLocSum:
		return Func(ParseRTLocSum), nil
	case domain.ReportDAAS:
		return Func(ParseDAAS), nil
	case domain.ReportRTReserve:
		return Func(ParseRTReserve), nil
	default:
		return nil, fmt.Errorf("%w: no parser for report %q", domain.ErrUnsupportedTarget, report)
	}
}

func (o Options) validate() (Options, error) {
	if o.Location == nil {
		return o, errors.New("parsers: nil location")
	}
	if o.Unmapped == "" {
		o.Unmapped = domain.UnmappedDrop
	}
	return o, nil
}

func opsType(entry domain.MappingEntry, name string) string {
	if entry.OpsType != "" {
		return entry.OpsType
	}
	return domain.OpsTypeFor(name)
}

// dataRows returns the rows whose record type column is "D", in order.
func dataRows(t domain.RawTable, typeCol int) [][]string {
	var rows [][]string
	for i := range t.Rows {
		if t.Cell(i, typeCol) == "D" {
			rows = append(rows, t.Rows[i])
		}
	}
	return rows
}

func maxWidth(rows [][]string) int {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return trim(row[col])
}
