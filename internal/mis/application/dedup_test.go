package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

func record(he time.Time, service string, da domain.Value) domain.Record {
	return domain.Record{
		HourEnding: he, Asset: "CABOT_A", Name: "CABOT", OpsType: domain.OpsTypeGenerator,
		Service: service, DAVolume: da, RTVolume: domain.Blank(), Unit: domain.UnitMW, IntervalSeconds: domain.IntervalSeconds,
	}
}

func snapshot(records ...domain.Record) domain.Snapshot {
	return domain.Snapshot{Columns: map[string]bool{domain.ColumnDA: true, domain.ColumnRT: true}, Records: records}
}

func TestDeduplicate_ValueColumn(t *testing.T) {
	he := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	stored := snapshot(
		record(he, "TMSR", domain.Numeric(4)),
		record(he, "TMNSR", domain.Numeric(0)),
		record(he, "TMOR", domain.Blank()),
	)
	parsed := []domain.Record{
		record(he, "TMSR", domain.Numeric(9)),
		record(he, "TMNSR", domain.Numeric(2)),
		record(he, "TMOR", domain.Numeric(1)),
		record(he, "EIR", domain.Numeric(0)),
	}
	res := deduplicate(parsed, stored, domain.ColumnDA)
	assert.Equal(t, 1, res.dropped)
	require.Len(t, res.kept, 3)
	require.Len(t, res.zeroOverwrites, 1)
	assert.Equal(t, "TMNSR", res.zeroOverwrites[0].Service)
}

func TestDeduplicate_ZeroOverZeroIsNotReported(t *testing.T) {
	he := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	res := deduplicate([]domain.Record{record(he, "TMSR", domain.Numeric(0))}, snapshot(record(he, "TMSR", domain.Numeric(0))), domain.ColumnDA)
	assert.Len(t, res.kept, 1)
	assert.Empty(t, res.zeroOverwrites)
}

func TestDeduplicate_Membership(t *testing.T) {
	he := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	stored := snapshot(record(he, domain.ServiceEnergy, domain.Numeric(0)))
	parsed := []domain.Record{
		record(he, domain.ServiceEnergy, domain.Numeric(3)),
		record(he.Add(time.Hour), domain.ServiceEnergy, domain.Numeric(3)),
	}
	res := deduplicate(parsed, stored, "")
	assert.Equal(t, 1, res.dropped)
	require.Len(t, res.kept, 1)
	assert.True(t, res.kept[0].HourEnding.Equal(he.Add(time.Hour)))
}

func TestDeduplicate_LegacySchemaKeepsEverything(t *testing.T) {
	he := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	stored := domain.Snapshot{Columns: map[string]bool{domain.ColumnDA: true}, Records: []domain.Record{record(he, "TMSR", domain.Numeric(4))}}
	res := deduplicate([]domain.Record{record(he, "TMSR", domain.Numeric(1))}, stored, domain.ColumnRT)
	assert.Len(t, res.kept, 1)
	assert.Zero(t, res.dropped)
}

func TestGapFill(t *testing.T) {
	target, err := domain.ResolveTarget(domain.TableAncillary, domain.ReportRTReserve)
	require.NoError(t, err)
	base := time.Date(2025, 6, 1, 4, 0, 0, 0, time.UTC)
	slot := func(h int, name string) domain.Slot {
		return domain.Slot{HourEnding: base.Add(time.Duration(h) * time.Hour), Name: name, OpsType: domain.OpsTypeFor(name), Service: "TMSR"}
	}
	records := []domain.Record{
		record(base.Add(time.Hour), "TMSR", domain.Numeric(1)),
		record(base.Add(4*time.Hour), "TMSR", domain.Numeric(1)),
	}
	missing := []domain.Slot{
		slot(0, "CABOT"), // before span
		slot(1, "CABOT"), // filled by data
		slot(2, "CABOT"),
		slot(3, "ROCKY RIVER"), // unmapped
		slot(5, "CABOT"), // after span
	}

	filled := gapFill(target, missing, records, cabotMapping(), domain.UnmappedDrop)
	require.Len(t, filled, 1)
	assert.True(t, filled[0].HourEnding.Equal(base.Add(2*time.Hour)))
	assert.Equal(t, "CABOT_A", filled[0].Asset)
	assert.True(t, filled[0].DAVolume.IsBlank())
	assert.True(t, filled[0].RTVolume.IsZero())

	filled = gapFill(target, missing, records, cabotMapping(), domain.UnmappedRetain)
	require.Len(t, filled, 2)
	assert.Equal(t, "", filled[1].Asset)

	assert.Empty(t, gapFill(target, missing, nil, cabotMapping(), domain.UnmappedDrop))
}

func TestGuard(t *testing.T) {
	he := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	assert.NoError(t, guard([]domain.Record{record(he, "TMSR", domain.Numeric(1)), record(he, "TMOR", domain.Numeric(1))}))

	err := guard([]domain.Record{record(he, "TMSR", domain.Numeric(1)), record(he, "TMSR", domain.Numeric(2))})
	require.ErrorIs(t, err, domain.ErrDuplicateKeys)
	assert.Contains(t, err.Error(), "CABOT_A|CABOT")
}
