package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run turns now",
	Long: `Run one or more turns immediately using the built-in simulator, then
save the board. Each turn resolves finished combat, re-dispatches idle
teams, plans one action per active team and acts it out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		turns, _ := cmd.Flags().GetInt("turns")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if turns < 1 {
			return fmt.Errorf("--turns must be at least 1")
		}
		return withSession(cmd, func(s *session) error {
			if dryRun {
				printPlans(cmd, s.orch, s.orch.PlanAll())
				return nil
			}
			records, err := s.orch.Run(cmd.Context(), turns)
			for _, rec := range records {
				printRecord(cmd.OutOrStdout(), rec)
			}
			if err != nil {
				s.log.Warnf("run finished with errors: %v", err)
			}
			return err
		})
	},
}

func init() {
	runCmd.Flags().IntP("turns", "n", 1, "Number of turns to run")
	runCmd.Flags().Bool("dry-run", false, "Show plans without running")
	rootCmd.AddCommand(runCmd)
}
