package parsers

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain/calendar"
)

// RTReserveColumns is the positional layout of OI_UNITRTRSV.
var RTReserveColumns = []string{
	"A", "B", "Date", "Version", "Data_vs_Header_Code",
	"Asset_ID", "Timestamp", "TMSR_Designation", "TMNSR_Designation", "TMOR_Designation",
}

const (
	rtrVersion   = 3
	rtrCode      = 4
	rtrAsset     = 5
	rtrTimestamp = 6
	rtrFirstDes  = 7
)

var rtrServices = []string{"TMSR", "TMNSR", "TMOR"}

type rtrSample struct {
	asset     string
	timestamp string
	version   string
	values    []string
}

// rtrHourKey groups samples into hours. The repeated fall-back hour is
// marked on its samples and forms its own group.
type rtrHourKey struct {
	asset  string
	date   time.Time
	he     int
	second bool
}

type rtrHour struct {
	key    rtrHourKey
	sums   []decimal.Decimal
	counts []int
}

// ParseRTReserve aggregates five-minute real-time reserve designations into
// hourly means per asset and service. Blank samples are ignored; an hour with
// no numeric sample is stored as zero.
func ParseRTReserve(tables []domain.RawTable, mapping *domain.MappingTable, opts Options) (Result, error) {
	opts, err := opts.validate()
	if err != nil {
		return Result{}, err
	}
	var res Result
	var samples []rtrSample
	for i, table := range tables {
		data := dataRows(table, rtrCode)
		res.RowsIn += len(data)
		if len(data) == 0 {
			continue
		}
		if width := maxWidth(data); width != len(RTReserveColumns) {
			return Result{}, fmt.Errorf("%w: %s table %d has %d columns, expected %d", domain.ErrSchemaMismatch, domain.ReportRTReserve, i+1, width, len(RTReserveColumns))
		}
		for _, raw := range data {
			s := rtrSample{
				asset:     domain.NormalizeNodeID(cell(raw, rtrAsset)),
				timestamp: cell(raw, rtrTimestamp),
				version:   cell(raw, rtrVersion),
			}
			for j := range rtrServices {
				s.values = append(s.values, cell(raw, rtrFirstDes+j))
			}
			samples = append(samples, s)
		}
	}

	keys := make([]versioned, len(samples))
	for i, s := range samples {
		version, ok := parseVersion(s.version)
		keys[i] = versioned{key: s.asset + "|" + s.timestamp, version: version, valid: ok}
	}
	filter := latestVersions(keys)
	res.DuplicatesRemoved = filter.removed
	if len(filter.ties) > 0 {
		res.warnf("%d duplicated groups had identical Version values; kept the first row. Examples: %s", len(filter.ties), tieExamples(filter.ties))
	}

	var hours []*rtrHour
	index := make(map[rtrHourKey]*rtrHour)
	for _, idx := range filter.keep {
		s := samples[idx]
		second := strings.Contains(s.timestamp, "X")
		ts, err := domain.ParseWallClock(strings.ReplaceAll(s.timestamp, "X", ""))
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", domain.ReportRTReserve, err)
		}
		key := rtrHourKey{asset: s.asset, date: domain.DateOf(ts), he: ts.Hour() + 1, second: second}
		hour, ok := index[key]
		if !ok {
			hour = &rtrHour{key: key, sums: make([]decimal.Decimal, len(rtrServices)), counts: make([]int, len(rtrServices))}
			index[key] = hour
			hours = append(hours, hour)
		}
		for j, raw := range s.values {
			v, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
			if err != nil {
				continue
			}
			hour.sums[j] = hour.sums[j].Add(v)
			hour.counts[j]++
		}
	}

	for _, hour := range hours {
		hourEnding, err := calendar.HourEnding(hour.key.date, hour.key.he, hour.key.second, opts.Location)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", domain.ReportRTReserve, err)
		}
		entries := mapping.ByNode(hour.key.asset)
		if len(entries) == 0 {
			if opts.Unmapped == domain.UnmappedDrop {
				res.RowsDropped++
				continue
			}
			entries = []domain.MappingEntry{{SourceName: hour.key.asset}}
		}
		for j, service := range rtrServices {
			mean := domain.Numeric(0)
			if hour.counts[j] > 0 {
				f, _ := hour.sums[j].Div(decimal.NewFromInt(int64(hour.counts[j]))).Float64()
				mean = domain.Numeric(f)
			}
			for _, entry := range entries {
				res.Records = append(res.Records, domain.Record{
					HourEnding:      hourEnding,
					Asset:           entry.Asset,
					Name:            entry.SourceName,
					OpsType:         opsType(entry, entry.SourceName),
					Service:         service,
					DAVolume:        domain.Blank(),
					RTVolume:        mean,
					Unit:            domain.UnitMW,
					IntervalSeconds: domain.IntervalSeconds,
				})
			}
		}
	}

	domain.SortRecords(res.Records)
	return res, nil
}
