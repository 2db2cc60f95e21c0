package commands

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/marcus/idlecrew/internal/ui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the interactive dashboard",
	Long: `Open a terminal dashboard showing teams, the backlog and live events.

Press n to run one turn, a to toggle running a turn every --every, tab to
switch panels and q to quit. Turns run here are saved like any other.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		every, _ := cmd.Flags().GetDuration("every")
		return withSession(cmd, func(s *session) error {
			ctx := cmd.Context()
			step := func() tea.Msg {
				rec, err := s.orch.RunTurn(ctx)
				if err != nil {
					s.log.Warnf("turn %d: %v", rec.Turn, err)
					return ui.ErrMsg{Err: err}
				}
				return ui.FromBoard(s.orch.Board(), rec.Plans)
			}

			model := ui.New(
				ui.WithStep(step, every),
				ui.WithBoard(ui.FromBoard(s.orch.Board(), s.orch.PlanAll())),
			)
			p := model.Program()
			s.orch.Subscribe(ui.Observer{Program: p})
			_, err := p.Run()
			return err
		})
	},
}

func init() {
	uiCmd.Flags().Duration("every", 5*time.Second, "Auto-advance interval")
	rootCmd.AddCommand(uiCmd)
}
