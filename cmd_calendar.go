package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain/calendar"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain/gaps"
)

func newCalendarCmd(a *app) *cobra.Command {
	var table, report, start, end string

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show expected and missing hourly slots for a table without fetching",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req, err := runRequest(table, report, start, end)
			if err != nil {
				return err
			}
			rc, err := a.cfg.NewRunConfig("calendar", req, time.Now())
			if err != nil {
				return err
			}
			store, _, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			target := rc.Target
			stored := domain.Snapshot{}
			exists, err := store.TableExists(ctx, target.Table)
			if err != nil {
				return err
			}
			if exists {
				if stored, err = store.Read(ctx, target.Table, rc.Start, rc.Location); err != nil {
					return err
				}
			}
			expected, err := calendar.Generate(rc.Start, rc.End, rc.Location, target.Combos())
			if err != nil {
				return err
			}
			missing := gaps.Detect(expected, stored, target.GapColumn)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "table:    %s (%s)\n", target.Table, target.Report)
			fmt.Fprintf(out, "range:    %s .. %s %s\n", rc.Start.Format(time.DateOnly), rc.End.Format(time.DateOnly), rc.Location)
			fmt.Fprintf(out, "exists:   %t\n", exists)
			fmt.Fprintf(out, "expected: %d\n", len(expected))
			fmt.Fprintf(out, "missing:  %d\n", len(missing))
			for _, day := range gaps.MissingDates(missing, rc.Location) {
				fmt.Fprintf(out, "  %s\n", day.Format(time.DateOnly))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Target table (required)")
	cmd.Flags().StringVar(&report, "report", "", "Source report (default: the table's default report)")
	cmd.Flags().StringVar(&start, "start", "", "First operating date, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "Last operating date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
