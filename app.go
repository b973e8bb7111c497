package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/application"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/mapping"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/pharos"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/sqlstore"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/metrics"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/notify"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/observability/logging"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	cfg        application.Config
	logger     *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "misrecon",
		Short:         "Reconcile ISO-NE MIS settlement reports into hourly record tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (default: $MIS_CONFIG)")

	cmd.AddCommand(
		newRunCmd(a),
		newServeCmd(a),
		newParseCmd(a),
		newCalendarCmd(a),
		newTokenCmd(a),
	)
	return cmd
}

func (a *app) load() error {
	cfg, err := application.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// openStore connects to the record database and prepares run history.
func (a *app) openStore(ctx context.Context) (*sqlstore.Store, *sqlstore.RunRepository, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, err
	}
	store, err := sqlstore.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	runs := sqlstore.NewRunRepository(store)
	if err := runs.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, runs, nil
}

// newRunner wires the reconciler dependencies. Metrics may be nil.
func (a *app) newRunner(store *sqlstore.Store, runs *sqlstore.RunRepository, m *metrics.Metrics) (*application.JobRunner, error) {
	if a.cfg.MappingPath == "" {
		return nil, eris.New("config: mapping_path (MIS_MAPPING_PATH) is required")
	}
	table, err := mapping.Load(a.cfg.MappingPath)
	if err != nil {
		return nil, err
	}
	a.logger.WithFields(log.Fields{"event": "mis_mapping_loaded", "entries": table.Len(), "path": a.cfg.MappingPath}).Info("asset mapping loaded")

	client := pharos.NewClient(a.cfg.Credentials(), a.cfg.Pharos.Timeout)
	client.SaveDir = a.cfg.Pharos.SaveDir
	client.Logger = a.logger

	var notifier notify.Notifier = notify.Nop{}
	if a.cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(a.cfg.WebhookURL)
	}

	deps := application.Dependencies{
		Fetcher: client,
		Store:   store,
		Mapping: table,
		Logger:  a.logger,
		Metrics: m,
		Now:     time.Now,
	}
	return application.NewJobRunner(a.cfg, runs, deps, notifier), nil
}

// runRequest builds a request from CLI flags. Empty dates use run defaults.
func runRequest(table, report, start, end string) (application.RunRequest, error) {
	req := application.RunRequest{Table: table, Report: report}
	var err error
	if req.Start, err = dateFlag("start", start); err != nil {
		return req, err
	}
	if req.End, err = dateFlag("end", end); err != nil {
		return req, err
	}
	return req, nil
}

func dateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("--%s must be YYYY-MM-DD: %w", name, err)
	}
	return &t, nil
}
