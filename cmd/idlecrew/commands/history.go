package commands

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent turns",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("last")
		summary, _ := cmd.Flags().GetBool("summary")
		asJSON, _ := cmd.Flags().GetBool("json")
		return withSession(cmd, func(s *session) error {
			out := cmd.OutOrStdout()
			if summary {
				sum, err := s.store.GetSummary(cmd.Context(), n)
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(out).Encode(sum)
				}
				fmt.Fprintf(out, "%sTurns:%s %d (%d failed), %d events\n", colorBold, colorReset, sum.Turns, sum.FailedTurns, sum.Events)
				actions := make([]string, 0, len(sum.ActionCounts))
				for a := range sum.ActionCounts {
					actions = append(actions, a)
				}
				slices.Sort(actions)
				for _, a := range actions {
					fmt.Fprintf(out, "  %-20s %d\n", a, sum.ActionCounts[a])
				}
				return nil
			}

			records, err := s.store.GetTurnHistory(cmd.Context(), n)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No turns recorded.")
				return nil
			}
			for _, rec := range records {
				printRecord(out, rec)
			}
			return nil
		})
	},
}

func init() {
	historyCmd.Flags().IntP("last", "n", 10, "Number of turns (0 for all)")
	historyCmd.Flags().Bool("summary", false, "Aggregate the turns instead of listing them")
	historyCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(historyCmd)
}
