package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethercrab-rs/latency-data/internal/correlate"
	"github.com/ethercrab-rs/latency-data/internal/report"
)

func newAnalyzeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <dump.pcapng>",
		Short: "Correlate an existing pcapng dump without re-running scenarios",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trace, err := correlate.ReadDump(args[0])
			if err != nil {
				return err
			}

			res, err := correlate.Correlate(trace)
			if err != nil {
				return fmt.Errorf("correlating %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Dump:       %s\n", args[0])
			fmt.Fprintf(out, "Frames:     %d\n", len(res.Frames))
			if len(res.Unresolved) > 0 {
				fmt.Fprintf(out, "Unresolved: %d\n", len(res.Unresolved))
			}

			report.PrintDistribution(out, "Frame latency", report.SummarizeFrames(res.Frames))

			return nil
		},
	}
}
