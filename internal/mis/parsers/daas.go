package parsers

import (
	"fmt"
	"strings"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain/calendar"
)

// DAASColumns is the positional layout of SD_DAASCLEARED.
var DAASColumns = []string{
	"A", "B", "Date", "Version", "Data_vs_Header_Code", "Hour_Ending", "G",
	"Asset_Name", "Asset_Type",
	"DA_TMSR_Obligation", "DA_TMNSR_Obligation", "DA_TMOR_Obligation", "DA_EIR_Obligation",
}

const (
	daasDate    = 2
	daasVersion = 3
	daasCode    = 4
	daasHE      = 5
	daasName    = 7
	daasType    = 8
	daasFirstOb = 9
)

// daasServices lists the obligation columns in melt order.
var daasServices = []string{"TMSR", "TMNSR", "TMOR", "EIR"}

type daasRow struct {
	date    string
	version string
	he      string
	name    string
	kind    string
	values  []string
}

// ParseDAAS parses day-ahead ancillary cleared obligations into hourly records,
// one per (hour, asset, service). Blank obligations are stored as zero.
func ParseDAAS(tables []domain.RawTable, mapping *domain.MappingTable, opts Options) (Result, error) {
	opts, err := opts.validate()
	if err != nil {
		return Result{}, err
	}
	var res Result
	var rows []daasRow
	for i, table := range tables {
		data := dataRows(table, daasCode)
		res.RowsIn += len(data)
		if len(data) == 0 {
			continue
		}
		width := maxWidth(data)
		if width < len(DAASColumns) {
			return Result{}, fmt.Errorf("%w: %s table %d has %d columns, expected %d", domain.ErrSchemaMismatch, domain.ReportDAAS, i+1, width, len(DAASColumns))
		}
		if width > len(DAASColumns) {
			res.warnf("%s table %d has %d columns, expected %d; using the first %d", domain.ReportDAAS, i+1, width, len(DAASColumns), len(DAASColumns))
		}
		for _, raw := range data {
			row := daasRow{
				date:    cell(raw, daasDate),
				version: cell(raw, daasVersion),
				he:      cell(raw, daasHE),
				name:    cell(raw, daasName),
				kind:    cell(raw, daasType),
			}
			for j := range daasServices {
				row.values = append(row.values, cell(raw, daasFirstOb+j))
			}
			rows = append(rows, row)
		}
	}

	keys := make([]versioned, len(rows))
	for i, row := range rows {
		version, ok := parseVersion(row.version)
		if !ok {
			return Result{}, fmt.Errorf("%s: invalid Version %q for %s HE%s %s", domain.ReportDAAS, row.version, row.date, row.he, row.name)
		}
		keys[i] = versioned{key: strings.Join([]string{row.date, row.he, row.name, row.kind}, "|"), version: version, valid: true}
	}
	filter := latestVersions(keys)
	res.DuplicatesRemoved = filter.removed
	if len(filter.ties) > 0 {
		res.warnf("%d duplicated groups had identical Version values; kept the first row. Examples: %s", len(filter.ties), tieExamples(filter.ties))
	}

	for _, idx := range filter.keep {
		row := rows[idx]
		date, err := domain.ParseDate(row.date)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", domain.ReportDAAS, err)
		}
		he, second, err := parseHourEnding(row.he)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", domain.ReportDAAS, err)
		}
		hourEnding, err := calendar.HourEnding(date, he, second, opts.Location)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", domain.ReportDAAS, err)
		}

		entries := mapping.ByName(row.name)
		if len(entries) == 0 {
			if opts.Unmapped == domain.UnmappedDrop {
				res.RowsDropped++
				continue
			}
			entries = []domain.MappingEntry{{SourceName: row.name}}
		}

		for j, service := range daasServices {
			volume, err := domain.ParseValue(row.values[j])
			if err != nil {
				return Result{}, fmt.Errorf("%s: invalid DA_%s_Obligation %q: %w", domain.ReportDAAS, service, row.values[j], err)
			}
			if volume.IsBlank() {
				volume = domain.Numeric(0)
			}
			for _, entry := range entries {
				res.Records = append(res.Records, domain.Record{
					HourEnding:      hourEnding,
					Asset:           entry.Asset,
					Name:            row.name,
					OpsType:         opsType(entry, row.name),
					Service:         service,
					DAVolume:        volume,
					RTVolume:        domain.Blank(),
					Unit:            domain.UnitMW,
					IntervalSeconds: domain.IntervalSeconds,
				})
			}
		}
	}

	domain.SortRecords(res.Records)
	if dups := domain.DuplicateKeys(res.Records); len(dups) > 0 {
		return Result{}, fmt.Errorf("%w: %s produced %d duplicated keys, first %s", domain.ErrDuplicateKeys, domain.ReportDAAS, len(dups), dups[0])
	}
	return res, nil
}
