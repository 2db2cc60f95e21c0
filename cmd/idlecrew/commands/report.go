package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/idlecrew/internal/reporting"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize recent turns as markdown",
	Long: `Generate a markdown report of recent turns: actions taken, backlog
progress, team states, failed turns and what needs attention next.

Use --save to also write it under the data directory, or --output to pick
the file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("last")
		save, _ := cmd.Flags().GetBool("save")
		output, _ := cmd.Flags().GetString("output")
		return withSession(cmd, func(s *session) error {
			records, err := s.store.GetTurnHistory(cmd.Context(), n)
			if err != nil {
				return err
			}
			gen := reporting.NewGenerator()
			report, err := gen.Generate(records, s.orch.Board())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.Content)

			if output == "" && save {
				output = reporting.DefaultReportPath(report.Date)
			}
			if output != "" {
				if err := gen.Save(report, output); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nSaved to %s\n", output)
			}
			return nil
		})
	},
}

func init() {
	reportCmd.Flags().IntP("last", "n", 50, "Number of turns to cover (0 for all)")
	reportCmd.Flags().Bool("save", false, "Write the report to the data directory")
	reportCmd.Flags().StringP("output", "o", "", "Write the report to this file")
	rootCmd.AddCommand(reportCmd)
}
