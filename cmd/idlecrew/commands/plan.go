package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/idlecrew/internal/orchestrator"
	"github.com/marcus/idlecrew/internal/state"
	"github.com/marcus/idlecrew/internal/teams"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the plan each active team would get now",
	Long: `Preview the next turn without running it. Nothing is saved and the
turn counter does not advance.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withSession(cmd, func(s *session) error {
			plans := s.orch.PlanAll()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(plans)
			}
			printPlans(cmd, s.orch, plans)
			return nil
		})
	},
}

func printPlans(cmd *cobra.Command, orch *orchestrator.Orchestrator, plans []state.TeamPlan) {
	out := cmd.OutOrStdout()
	if len(plans) == 0 {
		fmt.Fprintln(out, "No active teams.")
		return
	}
	var list []teams.Team
	orch.View(func(w *orchestrator.World) { list = w.Roster.Teams() })
	fmt.Fprintf(out, "%sNext turn: %d%s\n", colorBold, orch.Turn()+1, colorReset)
	for _, tp := range plans {
		name := fmt.Sprintf("team %d", tp.TeamIndex)
		if tp.TeamIndex < len(list) {
			name = list[tp.TeamIndex].Name
		}
		mark := colorGreen + "+" + colorReset
		if !tp.Plan.Valid {
			mark = colorYellow + "-" + colorReset
		}
		fmt.Fprintf(out, "  %s %-16s %s\n", mark, name, tp.Plan)
	}
}

func init() {
	planCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(planCmd)
}
