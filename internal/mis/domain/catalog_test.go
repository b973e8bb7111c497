package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTarget_Defaults(t *testing.T) {
	energy, err := ResolveTarget(TableEnergy, "")
	require.NoError(t, err)
	assert.Equal(t, ReportRTLocSum, energy.Report)
	assert.Empty(t, energy.GapColumn)
	assert.Equal(t, []string{ColumnDA, ColumnRT}, energy.UpdateColumns)

	ancillary, err := ResolveTarget(TableAncillary, "")
	require.NoError(t, err)
	assert.Equal(t, ReportDAAS, ancillary.Report)
	assert.Equal(t, ColumnDA, ancillary.GapColumn)
	assert.Equal(t, Date(2025, time.March, 1), ancillary.DefaultStart)
}

func TestResolveTarget_RealTimeReserve(t *testing.T) {
	target, err := ResolveTarget(TableAncillary, ReportRTReserve)
	require.NoError(t, err)
	assert.False(t, target.MostRecentVersion)
	assert.Equal(t, ChunkDaysHighVolume, target.ChunkDays)
	assert.Equal(t, ColumnRT, target.GapColumn)
	assert.Equal(t, []string{"TMNSR", "TMSR", "TMOR"}, target.Services)
}

func TestResolveTarget_Unsupported(t *testing.T) {
	_, err := ResolveTarget("ops.unknown", "")
	require.ErrorIs(t, err, ErrUnsupportedTarget)

	_, err = ResolveTarget(TableEnergy, ReportDAAS)
	require.ErrorIs(t, err, ErrUnsupportedTarget)

	_, err = ResolveTarget(TableAncillary, ReportRTLocSum)
	require.ErrorIs(t, err, ErrUnsupportedTarget)
}

func TestOpsTypeFor(t *testing.T) {
	assert.Equal(t, OpsTypePumping, OpsTypeFor("NORTHFIELD MOUNTAIN PUMP 1"))
	assert.Equal(t, OpsTypeGenerator, OpsTypeFor("CABOT"))
}

func TestPlaceholder(t *testing.T) {
	slot := Slot{HourEnding: time.Unix(1741500000, 0), Name: "CABOT", OpsType: OpsTypeGenerator, Service: "TMOR"}

	daas, _ := ResolveTarget(TableAncillary, ReportDAAS)
	rec := daas.Placeholder(slot, "CABOT_ASSET")
	assert.True(t, rec.DAVolume.IsZero())
	assert.True(t, rec.RTVolume.IsBlank())
	assert.Equal(t, UnitMW, rec.Unit)
	assert.Equal(t, "CABOT_ASSET", rec.Asset)

	rtr, _ := ResolveTarget(TableAncillary, ReportRTReserve)
	rec = rtr.Placeholder(slot, "CABOT_ASSET")
	assert.True(t, rec.DAVolume.IsBlank())
	assert.True(t, rec.RTVolume.IsZero())

	energy, _ := ResolveTarget(TableEnergy, "")
	rec = energy.Placeholder(Slot{HourEnding: slot.HourEnding, Name: "CABOT", OpsType: OpsTypeGenerator, Service: ServiceEnergy}, "CABOT_ASSET")
	assert.True(t, rec.DAVolume.IsZero())
	assert.True(t, rec.RTVolume.IsZero())
	assert.Equal(t, UnitMWh, rec.Unit)
	assert.Equal(t, IntervalSeconds, rec.IntervalSeconds)
}

func TestCombos(t *testing.T) {
	target, _ := ResolveTarget(TableAncillary, ReportDAAS)
	combos := target.Combos()
	assert.Len(t, combos, len(target.Names)*len(target.Services))
	for _, combo := range combos {
		assert.Equal(t, OpsTypeFor(combo.Name), combo.OpsType)
	}
}
