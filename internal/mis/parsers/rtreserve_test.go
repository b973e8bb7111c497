package parsers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

func rtrRow(assetID, ts, version, tmsr, tmnsr, tmor string) []string {
	return []string{"D", "OI_UNITRTRSV", "06/01/2025", version, "D", assetID, ts, tmsr, tmnsr, tmor}
}

func rtrTable(rows ...[]string) domain.RawTable {
	return domain.RawTable{Rows: append([][]string{{"C", "Unit Real-Time Reserve"}}, rows...)}
}

func TestParseRTReserve_HourlyMeanIgnoresBlanks(t *testing.T) {
	var rows [][]string
	for m := 0; m < 60; m += 5 {
		tmsr := "12"
		if m == 0 {
			tmsr = ""
		}
		if m == 5 {
			tmsr = "n/a"
		}
		rows = append(rows, rtrRow("12345", fmt.Sprintf("06/01/2025 13:%02d:00", m), "2025-06-02 08:00:00", tmsr, "4", ""))
	}
	res, err := ParseRTReserve([]domain.RawTable{rtrTable(rows...)}, testMapping(), Options{Location: newYork(t)})
	require.NoError(t, err)
	assert.Equal(t, 12, res.RowsIn)
	require.Len(t, res.Records, 3)

	byService := make(map[string]domain.Record)
	for _, rec := range res.Records {
		byService[rec.Service] = rec
		assert.Equal(t, "2025-06-01T14:00:00-04:00", local(t, rec.HourEnding))
		assert.Equal(t, "CABOT", rec.Name)
		assert.Equal(t, "CABOT_A", rec.Asset)
		assert.True(t, rec.DAVolume.IsBlank())
		assert.Equal(t, domain.UnitMW, rec.Unit)
	}
	assert.Equal(t, 12.0, byService["TMSR"].RTVolume.OrZero())
	assert.Equal(t, 4.0, byService["TMNSR"].RTVolume.OrZero())
	assert.True(t, byService["TMOR"].RTVolume.IsZero(), "no numeric samples means zero")
}

func TestParseRTReserve_SchemaMismatch(t *testing.T) {
	row := append(rtrRow("12345", "06/01/2025 13:00:00", "2025-06-02 08:00:00", "1", "1", "1"), "extra")
	_, err := ParseRTReserve([]domain.RawTable{rtrTable(row)}, testMapping(), Options{Location: newYork(t)})
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestParseRTReserve_KeepsLatestVersionPerSample(t *testing.T) {
	table := rtrTable(
		rtrRow("12345", "06/01/2025 13:00:00", "2025-06-02 08:00:00", "1", "1", "1"),
		rtrRow("12345", "06/01/2025 13:00:00", "2025-06-03 08:00:00", "9", "9", "9"),
		rtrRow("12345", "06/01/2025 13:00:00", "garbage", "50", "50", "50"),
	)
	res, err := ParseRTReserve([]domain.RawTable{table}, testMapping(), Options{Location: newYork(t)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.DuplicatesRemoved)
	for _, rec := range res.Records {
		assert.Equal(t, 9.0, rec.RTVolume.OrZero())
	}
}

func TestParseRTReserve_FallBackMarker(t *testing.T) {
	table := rtrTable(
		rtrRow("12345", "11/02/2025 01:05:00", "2025-11-03 08:00:00", "1", "1", "1"),
		rtrRow("12345", "11/02/2025 01:05:00X", "2025-11-03 08:00:00", "3", "3", "3"),
	)
	res, err := ParseRTReserve([]domain.RawTable{table}, testMapping(), Options{Location: newYork(t)})
	require.NoError(t, err)
	require.Len(t, res.Records, 6)

	var instants []string
	for _, rec := range res.Records {
		if rec.Service == "TMSR" {
			instants = append(instants, local(t, rec.HourEnding))
		}
	}
	assert.Equal(t, []string{"2025-11-02T01:00:00-05:00", "2025-11-02T02:00:00-05:00"}, instants)
}

func TestParseRTReserve_UnmappedRetainUsesAssetID(t *testing.T) {
	table := rtrTable(rtrRow("999.0", "06/01/2025 23:10:00", "2025-06-02 08:00:00", "1", "2", "3"))

	res, err := ParseRTReserve([]domain.RawTable{table}, testMapping(), Options{Location: newYork(t)})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, 1, res.RowsDropped)

	res, err = ParseRTReserve([]domain.RawTable{table}, testMapping(), Options{Location: newYork(t), Unmapped: domain.UnmappedRetain})
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	assert.Equal(t, "999", res.Records[0].Name)
	assert.Empty(t, res.Records[0].Asset)
	assert.Equal(t, "2025-06-02T00:00:00-04:00", local(t, res.Records[0].HourEnding))
}
