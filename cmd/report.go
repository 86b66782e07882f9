package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/indielab/kaish/core/logger"
)

var reportJSON bool

// reportCmd summarizes a JSON-lines event log: which tools ran, what
// failed to resolve, parse errors and panics.
var reportCmd = &cobra.Command{
	Use:   "report LOGFILE",
	Short: "Summarize a kernel event log.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		fd, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer fd.Close()

		report := logger.NewUsageReport()
		if err := logger.ReadJSONLinesLog(fd, report.Update); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if reportJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		fmt.Fprintf(out, "entries:  %d\n", report.Entries)
		fmt.Fprintf(out, "failures: %d\n", report.Failures)
		if len(report.ToolCalls) > 0 {
			fmt.Fprintln(out, "tool calls:")
			for _, name := range report.TopTools() {
				fmt.Fprintf(out, "  %6d %s\n", report.ToolCalls[name], name)
			}
		}
		if len(report.UnknownCommands) > 0 {
			fmt.Fprintln(out, "unknown commands:")
			for name, n := range report.UnknownCommands {
				fmt.Fprintf(out, "  %6d %s\n", n, name)
			}
		}
		for _, msg := range report.ParseErrors {
			fmt.Fprintf(out, "parse error: %s\n", msg)
		}
		for _, p := range report.Panics {
			fmt.Fprintf(out, "panic: %s\n", p.Context)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "emit the report as JSON")
	rootCmd.AddCommand(reportCmd)
}
