package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/idlecrew/internal/scenario"
	"github.com/marcus/idlecrew/internal/state"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the board to a compressed snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *session) error {
			b := s.orch.Board()
			if err := state.ExportFile(args[0], b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported turn %d (%d tasks, %d teams) to %s\n", b.Turn, len(b.Tasks), len(b.Teams), args[0])
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the board with a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, b, err := state.ImportFile(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(s *session) error {
			if err := s.orch.LoadBoard(b); err != nil {
				return err
			}
			if err := s.orch.Save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported turn %d exported %s\n", h.Turn, h.ExportedAt.Format(time.RFC3339))
			return nil
		})
	},
}

var loadCmd = &cobra.Command{
	Use:   "load <scenario.yaml>",
	Short: "Replace the board with a scenario file",
	Long: `Load a YAML scenario describing the backlog, teams, members and storage.
The file is checked against the scenario schema before anything changes.
Run "idlecrew init --scenario" for an example.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := scenario.Load(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(s *session) error {
			b, err := f.Board(s.cfg.World.BaseLocation, time.Now())
			if err != nil {
				return err
			}
			if err := s.orch.LoadBoard(b); err != nil {
				return err
			}
			if err := s.orch.Save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d tasks and %d teams from %s\n", len(b.Tasks), len(b.Teams), args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd, loadCmd)
}
