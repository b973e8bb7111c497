package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_url: postgres://mis@db/mis
workers: 8
gap_fill: true
pharos:
  organization: other-org
  timeout: 45s
schedule:
  daily_at: "07:30"
  jobs:
    - ops.isone_hourly_ancillary
    - ops.isone_hourly_ancillary:OI_UNITRTRSV
`), 0o644))
	t.Setenv("MIS_WORKERS", "3")
	t.Setenv("PHAROS_TOKEN", "user:pass")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "postgres://mis@db/mis", cfg.DatabaseURL)
	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.GapFill)
	assert.Equal(t, "other-org", cfg.Pharos.Organization)
	assert.Equal(t, 45*time.Second, cfg.Pharos.Timeout)
	assert.Equal(t, "user:pass", cfg.Credentials().Token)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)
	assert.Equal(t, domain.UnmappedDrop, cfg.UnmappedPolicy())

	jobs, err := cfg.Jobs()
	require.NoError(t, err)
	assert.Equal(t, []JobSpec{
		{Table: domain.TableAncillary, Report: domain.ReportDAAS},
		{Table: domain.TableAncillary, Report: domain.ReportRTReserve},
	}, jobs)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{DatabaseURL: "sqlite://x.db", Timezone: DefaultTimezone, Workers: 1, Schedule: ScheduleConfig{DailyAt: "06:00"}}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"database":  func(c *Config) { c.DatabaseURL = "" },
		"timezone":  func(c *Config) { c.Timezone = "Mars/Olympus" },
		"workers":   func(c *Config) { c.Workers = 0 },
		"unmapped":  func(c *Config) { c.Unmapped = "keep" },
		"daily_at":  func(c *Config) { c.Schedule.DailyAt = "25:99" },
		"jobs list": func(c *Config) { c.Schedule.Jobs = []string{"ops.unknown"} },
	}
	for name, mutate := range cases {
		cfg := valid
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestNewRunConfig_Defaults(t *testing.T) {
	cfg := Config{Timezone: DefaultTimezone, Workers: 2, Unmapped: "retain"}
	now := time.Date(2025, time.June, 10, 2, 0, 0, 0, time.UTC) // June 9 in New York

	rc, err := cfg.NewRunConfig("r1", RunRequest{Table: domain.TableAncillary}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportDAAS, rc.Target.Report)
	assert.Equal(t, domain.Date(2025, time.March, 1), rc.Start)
	assert.Equal(t, domain.Date(2025, time.June, 7), rc.End)
	assert.Equal(t, domain.UnmappedRetain, rc.Unmapped)

	start := domain.Date(2025, time.June, 9)
	_, err = cfg.NewRunConfig("r2", RunRequest{Table: domain.TableAncillary, Start: &start}, now)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = cfg.NewRunConfig("r3", RunRequest{Table: domain.TableEnergy, Report: domain.ReportDAAS}, now)
	assert.ErrorIs(t, err, domain.ErrUnsupportedTarget)
}
