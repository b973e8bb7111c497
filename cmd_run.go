package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var table, report, start, end string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation pass and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req, err := runRequest(table, report, start, end)
			if err != nil {
				return err
			}
			store, runs, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runner, err := a.newRunner(store, runs, nil)
			if err != nil {
				return err
			}
			_, summary, runErr := runner.Run(ctx, req)
			if summary != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(summary); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Target table, e.g. ops.isone_hourly_energy (required)")
	cmd.Flags().StringVar(&report, "report", "", "Source report (default: the table's default report)")
	cmd.Flags().StringVar(&start, "start", "", "First operating date, YYYY-MM-DD (default: table start)")
	cmd.Flags().StringVar(&end, "end", "", "Last operating date, YYYY-MM-DD (default: two days ago)")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
