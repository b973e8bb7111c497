package application

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/pharos"
)

// DefaultTimezone is the ISO-NE operating zone.
const DefaultTimezone = "America/New_York"

// Config is the process configuration.
type Config struct {
	DatabaseURL string         `yaml:"database_url"`
	Timezone    string         `yaml:"timezone"`
	MappingPath string         `yaml:"mapping_path"`
	Pharos      PharosConfig   `yaml:"pharos"`
	Workers     int            `yaml:"workers"`
	GapFill     bool           `yaml:"gap_fill"`
	Unmapped    string         `yaml:"unmapped"`
	ReportDir   string         `yaml:"report_dir"`
	HTTPAddr    string         `yaml:"http_addr"`
	JWTSecret   string         `yaml:"jwt_secret"`
	WebhookURL  string         `yaml:"webhook_url"`
	Log         LogConfig      `yaml:"log"`
	Schedule    ScheduleConfig `yaml:"schedule"`
}

// PharosConfig configures the report download API.
type PharosConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Organization string        `yaml:"organization"`
	Token        string        `yaml:"token"`
	PreEncoded   bool          `yaml:"pre_encoded"`
	Timeout      time.Duration `yaml:"timeout"`
	SaveDir      string        `yaml:"save_dir"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ScheduleConfig defines the daily job list.
type ScheduleConfig struct {
	DailyAt string   `yaml:"daily_at"`
	Jobs    []string `yaml:"jobs"`
}

// JobSpec is one scheduled (table, report) pair.
type JobSpec struct {
	Table  string
	Report string
}

// LoadConfig applies defaults, then the YAML file at path (or MIS_CONFIG),
// then environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		Timezone: DefaultTimezone,
		Pharos: PharosConfig{
			BaseURL:      pharos.DefaultBaseURL,
			Organization: pharos.DefaultOrganization,
			Timeout:      30 * time.Second,
		},
		Workers:  4,
		Unmapped: string(domain.UnmappedDrop),
		HTTPAddr: ":8080",
		Log:      LogConfig{Level: "info", Format: "text"},
		Schedule: ScheduleConfig{DailyAt: "06:00"},
	}

	if path == "" {
		path = os.Getenv("MIS_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, eris.Wrapf(err, "config: read %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, eris.Wrapf(err, "config: parse %s", path)
		}
	}

	cfg.DatabaseURL = getenvDefault("MIS_DATABASE_URL", getenvDefault("DATABASE_URL", cfg.DatabaseURL))
	cfg.Timezone = getenvDefault("MIS_TIMEZONE", cfg.Timezone)
	cfg.MappingPath = getenvDefault("MIS_MAPPING_PATH", cfg.MappingPath)
	cfg.Pharos.BaseURL = getenvDefault("PHAROS_BASE_URL", cfg.Pharos.BaseURL)
	cfg.Pharos.Organization = getenvDefault("PHAROS_ORGANIZATION", cfg.Pharos.Organization)
	cfg.Pharos.Token = getenvDefault("PHAROS_TOKEN", cfg.Pharos.Token)
	cfg.Pharos.PreEncoded = getenvBoolDefault("PHAROS_TOKEN_PRE_ENCODED", cfg.Pharos.PreEncoded)
	cfg.Pharos.Timeout = getenvDuration("PHAROS_TIMEOUT", cfg.Pharos.Timeout)
	cfg.Pharos.SaveDir = getenvDefault("PHAROS_SAVE_DIR", cfg.Pharos.SaveDir)
	cfg.Workers = getenvIntDefault("MIS_WORKERS", cfg.Workers)
	cfg.GapFill = getenvBoolDefault("MIS_GAP_FILL", cfg.GapFill)
	cfg.Unmapped = getenvDefault("MIS_UNMAPPED", cfg.Unmapped)
	cfg.ReportDir = getenvDefault("MIS_REPORT_DIR", cfg.ReportDir)
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", cfg.JWTSecret)
	cfg.WebhookURL = getenvDefault("MIS_WEBHOOK_URL", cfg.WebhookURL)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)
	cfg.Schedule.DailyAt = getenvDefault("MIS_DAILY_AT", cfg.Schedule.DailyAt)
	if jobs := splitCSV(os.Getenv("MIS_JOBS")); len(jobs) > 0 {
		cfg.Schedule.Jobs = jobs
	}
	return cfg, nil
}

// Validate rejects configuration that cannot run.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return eris.New("config: database_url (MIS_DATABASE_URL) is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return eris.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	if _, ok := domain.ParseUnmappedPolicy(c.Unmapped); !ok {
		return eris.Errorf("config: unmapped policy %q (want drop or retain)", c.Unmapped)
	}
	if _, _, err := parseDailyAt(c.Schedule.DailyAt); c.Schedule.DailyAt != "" && err != nil {
		return eris.Errorf("config: daily_at %q (want HH:MM)", c.Schedule.DailyAt)
	}
	if _, err := c.Jobs(); err != nil {
		return err
	}
	return nil
}

// Location loads the operating time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: timezone %q", c.Timezone)
	}
	return loc, nil
}

// UnmappedPolicy returns the configured policy, defaulting to drop.
func (c Config) UnmappedPolicy() domain.UnmappedPolicy {
	policy, ok := domain.ParseUnmappedPolicy(c.Unmapped)
	if !ok {
		return domain.UnmappedDrop
	}
	return policy
}

// Jobs parses the scheduled job list. Entries are "table" or "table:report".
func (c Config) Jobs() ([]JobSpec, error) {
	jobs := make([]JobSpec, 0, len(c.Schedule.Jobs))
	for _, raw := range c.Schedule.Jobs {
		table, report, _ := strings.Cut(strings.TrimSpace(raw), ":")
		target, err := domain.ResolveTarget(strings.TrimSpace(table), strings.TrimSpace(report))
		if err != nil {
			return nil, eris.Wrapf(err, "config: job %q", raw)
		}
		jobs = append(jobs, JobSpec{Table: target.Table, Report: target.Report})
	}
	return jobs, nil
}

// Credentials returns the report API credentials.
func (c Config) Credentials() pharos.Credentials {
	return pharos.Credentials{Token: c.Pharos.Token, PreEncoded: c.Pharos.PreEncoded}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
