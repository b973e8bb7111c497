package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/application"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/mapping"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/workbook"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/parsers"
)

type parseOptions struct {
	report      string
	mappingPath string
	out         string
	summarize   bool
}

func newParseCmd(a *app) *cobra.Command {
	var opts parseOptions

	cmd := &cobra.Command{
		Use:   "parse FILE...",
		Short: "Parse downloaded report files into canonical records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.parse(cmd.OutOrStdout(), opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.report, "report", "", "Report name, e.g. SD_DAASCLEARED (required)")
	cmd.Flags().StringVar(&opts.mappingPath, "mapping", "", "Asset mapping file (default: mapping_path from config)")
	cmd.Flags().StringVar(&opts.out, "out", "", "Output file, .csv or .xlsx (default: CSV on stdout)")
	cmd.Flags().BoolVar(&opts.summarize, "summarize", false, "Print the dispatch and LMP summary (SR_RTLOCSUM only)")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func (a *app) parse(stdout io.Writer, opts parseOptions, files []string) error {
	mappingPath := opts.mappingPath
	if mappingPath == "" {
		mappingPath = a.cfg.MappingPath
	}
	table, err := mapping.Load(mappingPath)
	if err != nil {
		return err
	}
	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}
	tables, err := workbook.ReadAll(files)
	if err != nil {
		return err
	}

	if opts.summarize {
		if opts.report != domain.ReportRTLocSum {
			return fmt.Errorf("--summarize needs --report %s", domain.ReportRTLocSum)
		}
		rows, err := parsers.ReadLocSum(tables)
		if err != nil {
			return err
		}
		return writeLocSumSummary(stdout, parsers.Summarize(rows, table))
	}

	parser, err := parsers.ForReport(opts.report)
	if err != nil {
		return err
	}
	res, err := parser.Parse(tables, table, parsers.Options{Location: loc, Unmapped: a.cfg.UnmappedPolicy()})
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		a.logger.WithField("report", opts.report).Warn(w)
	}
	a.logger.WithFields(log.Fields{
		"event":      "mis_parse_done",
		"report":     opts.report,
		"rows_in":    res.RowsIn,
		"records":    len(res.Records),
		"dropped":    res.RowsDropped,
		"duplicates": res.DuplicatesRemoved,
	}).Info("parsed")

	switch strings.ToLower(filepath.Ext(opts.out)) {
	case "":
		return application.WriteRecordsCSV(stdout, res.Records, loc)
	case ".xlsx":
		s := &application.Summary{
			Report:            opts.report,
			Status:            application.StatusSucceeded,
			RowsParsed:        len(res.Records),
			RowsUnmapped:      res.RowsDropped,
			VersionDuplicates: res.DuplicatesRemoved,
			Warnings:          res.Warnings,
			Records:           res.Records,
		}
		data, err := application.BuildRunXLSX(s, loc)
		if err != nil {
			return err
		}
		return os.WriteFile(opts.out, data, 0o644)
	default:
		f, err := os.Create(opts.out)
		if err != nil {
			return err
		}
		if err := application.WriteRecordsCSV(f, res.Records, loc); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
}

func writeLocSumSummary(w io.Writer, rows []parsers.Summary) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Asset", "Name", "Operation Type", "Flow Date", "HE", "Location ID", "RT Dispatch", "DA Dispatch", "RT LMP"})
	for _, row := range rows {
		_ = cw.Write([]string{
			row.Asset,
			row.Name,
			row.OpsType,
			row.FlowDate.Format("2006-01-02"),
			strconv.Itoa(row.HE),
			strconv.FormatInt(row.LocationID, 10),
			nullString(row.RTDispatch),
			nullString(row.DADispatch),
			nullString(row.RTLMP),
		})
	}
	cw.Flush()
	return cw.Error()
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
