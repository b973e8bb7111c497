package parsers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain/calendar"
)

// RTLOCSUM column names used downstream.
const (
	ColFlowDate        = "Flow Date"
	ColTradingInterval = "Trading Interval"
	ColLocationID      = "Location ID"
	ColLocationName    = "Location Name"
	ColRTDispatch      = "Real Time Adjusted Net Interchange"
	ColDeviation       = "Adjusted Net Interchange Deviation"
	ColEnergy          = "Real Time Energy Component"
	ColCongestion      = "Real Time Congestion Component"
	ColLoss            = "Real Time Marginal Loss Component"
)

const locSumHeaderRow = 4

var locSumLeading = []string{"Org Name", "Report Name", ColFlowDate, "Report Date", "Data Type"}

var locSumIgnored = map[string]bool{
	"Org Name": true, "Report Name": true, "Report Date": true, "Data Type": true, "Location Type": true,
}

// LocSumRow is one typed RTLOCSUM data row. Numeric columns that were blank
// are absent from Values.
type LocSumRow struct {
	FlowDate         time.Time
	HE               int
	SecondOccurrence bool
	LocationID       int64
	LocationName     string
	Values           map[string]decimal.Decimal
}

func (r LocSumRow) value(col string) (decimal.Decimal, bool) {
	v, ok := r.Values[col]
	return v, ok
}

// ReadLocSum types the data rows of jagged RTLOCSUM tables. The fifth row of
// each table carries the column names; its leading five cells are fixed.
func ReadLocSum(tables []domain.RawTable) ([]LocSumRow, error) {
	var out []LocSumRow
	for i, table := range tables {
		rows := table.Rows
		if len(table.Header) > 0 {
			rows = append([][]string{table.Header}, rows...)
		}
		if len(rows) <= locSumHeaderRow {
			if len(rows) == 0 {
				continue
			}
			return nil, fmt.Errorf("%w: %s table %d has %d rows, no header row", domain.ErrSchemaMismatch, domain.ReportRTLocSum, i+1, len(rows))
		}
		header := make([]string, len(rows[locSumHeaderRow]))
		for j := range header {
			header[j] = cell(rows[locSumHeaderRow], j)
		}
		for j, name := range locSumLeading {
			if j < len(header) {
				header[j] = name
			}
		}

		var data [][]string
		for _, row := range rows {
			if cell(row, 4) == "D" {
				data = append(data, row)
			}
		}
		columns := usedColumns(header, data)
		for _, required := range []string{ColFlowDate, ColTradingInterval, ColLocationID, ColLocationName} {
			if _, ok := columns[required]; !ok && len(data) > 0 {
				return nil, fmt.Errorf("%w: %s table %d lacks column %q", domain.ErrSchemaMismatch, domain.ReportRTLocSum, i+1, required)
			}
		}

		for _, raw := range data {
			row, err := typeLocSumRow(raw, columns)
			if err != nil {
				return nil, fmt.Errorf("%s table %d: %w", domain.ReportRTLocSum, i+1, err)
			}
			out = append(out, row)
		}
	}
	return out, nil
}

// usedColumns maps named columns that hold at least one non-blank data cell.
func usedColumns(header []string, data [][]string) map[string]int {
	columns := make(map[string]int)
	for j, name := range header {
		if name == "" || locSumIgnored[name] {
			continue
		}
		for _, row := range data {
			if cell(row, j) != "" {
				columns[name] = j
				break
			}
		}
	}
	return columns
}

func typeLocSumRow(raw []string, columns map[string]int) (LocSumRow, error) {
	flowDate, err := domain.ParseDate(cell(raw, columns[ColFlowDate]))
	if err != nil {
		return LocSumRow{}, err
	}
	he, second, err := parseHourEnding(cell(raw, columns[ColTradingInterval]))
	if err != nil {
		return LocSumRow{}, err
	}
	locationID, err := strconv.ParseInt(cell(raw, columns[ColLocationID]), 10, 64)
	if err != nil {
		return LocSumRow{}, fmt.Errorf("invalid Location ID %q", cell(raw, columns[ColLocationID]))
	}
	row := LocSumRow{
		FlowDate:         flowDate,
		HE:               he,
		SecondOccurrence: second,
		LocationID:       locationID,
		LocationName:     cell(raw, columns[ColLocationName]),
		Values:           make(map[string]decimal.Decimal),
	}
	for name, j := range columns {
		switch name {
		case ColFlowDate, ColTradingInterval, ColLocationID, ColLocationName:
			continue
		}
		text := cell(raw, j)
		if text == "" {
			continue
		}
		v, err := decimal.NewFromString(text)
		if err != nil {
			return LocSumRow{}, fmt.Errorf("column %q: invalid number %q", name, text)
		}
		row.Values[name] = v
	}
	return row, nil
}

// ParseRTLocSum maps real-time locational summaries to hourly energy records:
// rt is the adjusted net interchange and da is rt minus its deviation.
func ParseRTLocSum(tables []domain.RawTable, mapping *domain.MappingTable, opts Options) (Result, error) {
	opts, err := opts.validate()
	if err != nil {
		return Result{}, err
	}
	rows, err := ReadLocSum(tables)
	if err != nil {
		return Result{}, err
	}
	res := Result{RowsIn: len(rows)}
	seen := make(occurrences)
	for _, row := range rows {
		entries := mapping.ByLocation(row.LocationName)
		if len(entries) == 0 {
			if opts.Unmapped == domain.UnmappedDrop {
				res.RowsDropped++
				continue
			}
			entries = []domain.MappingEntry{{SourceName: row.LocationName}}
		}

		rt := nullable(row.value(ColRTDispatch))
		da := domain.Blank()
		if rtDec, ok := row.value(ColRTDispatch); ok {
			if dev, ok := row.value(ColDeviation); ok {
				da = nullable(rtDec.Sub(dev), true)
			}
		}

		for _, entry := range entries {
			ops := opsType(entry, entry.SourceName)
			n := seen.next(occurrenceKey{name: entry.SourceName, asset: entry.Asset, opsType: ops, flowDate: row.FlowDate, he: row.HE})
			hourEnding, err := calendar.HourEnding(row.FlowDate, row.HE, row.SecondOccurrence || n > 0, opts.Location)
			if err != nil {
				return Result{}, fmt.Errorf("%s: %w", domain.ReportRTLocSum, err)
			}
			res.Records = append(res.Records, domain.Record{
				HourEnding:      hourEnding,
				Asset:           entry.Asset,
				Name:            entry.SourceName,
				OpsType:         ops,
				Service:         domain.ServiceEnergy,
				DAVolume:        da,
				RTVolume:        rt,
				Unit:            domain.UnitMWh,
				IntervalSeconds: domain.IntervalSeconds,
			})
		}
	}
	domain.SortRecords(res.Records)
	return res, nil
}

func nullable(d decimal.Decimal, ok bool) domain.Value {
	if !ok {
		return domain.Blank()
	}
	f, _ := d.Float64()
	return domain.Numeric(f)
}

// Summary is the operations view of one mapped RTLOCSUM row.
type Summary struct {
	Asset      string
	Name       string
	OpsType    string
	FlowDate   time.Time
	HE         int
	LocationID int64
	RTDispatch decimal.NullDecimal
	DADispatch decimal.NullDecimal
	RTLMP      decimal.NullDecimal
}

// Summarize reduces typed rows to dispatch and LMP positions. Rows whose
// location has no mapped asset are left out.
func Summarize(rows []LocSumRow, mapping *domain.MappingTable) []Summary {
	var out []Summary
	for _, row := range rows {
		for _, entry := range mapping.ByLocation(row.LocationName) {
			if entry.Asset == "" {
				continue
			}
			s := Summary{
				Asset:      entry.Asset,
				Name:       entry.SourceName,
				OpsType:    opsType(entry, entry.SourceName),
				FlowDate:   row.FlowDate,
				HE:         row.HE,
				LocationID: row.LocationID,
			}
			if rt, ok := row.value(ColRTDispatch); ok {
				s.RTDispatch = decimal.NewNullDecimal(rt)
				if dev, ok := row.value(ColDeviation); ok {
					s.DADispatch = decimal.NewNullDecimal(rt.Sub(dev))
				}
			}
			energy, okE := row.value(ColEnergy)
			congestion, okC := row.value(ColCongestion)
			loss, okL := row.value(ColLoss)
			if okE && okC && okL {
				s.RTLMP = decimal.NewNullDecimal(energy.Add(congestion).Add(loss))
			}
			out = append(out, s)
		}
	}
	return out
}
