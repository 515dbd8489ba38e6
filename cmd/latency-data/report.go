package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ethercrab-rs/latency-data/internal/report"
	"github.com/ethercrab-rs/latency-data/internal/store"
)

func newReportCommand() *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "report <run-name>",
		Short: "Summarise a persisted run from the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbURL == "" {
				return errors.New("--db-url is required")
			}

			st, err := store.Connect(cmd.Context(), dbURL)
			if err != nil {
				return err
			}
			defer st.Close()

			run, frames, err := st.LoadRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			report.Print(cmd.OutOrStdout(), report.Summarize(run, frames, 0))

			return nil
		},
	}

	cmd.Flags().StringVar(&dbURL, "db-url", "", "Postgres URL holding persisted runs")

	return cmd
}
