package commands

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/marcus/idlecrew/internal/orchestrator"
)

var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Inspect and adjust base storage and carried items",
}

var stockListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show storage and what each member carries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *session) error {
			out := cmd.OutOrStdout()
			s.orch.View(func(w *orchestrator.World) {
				fmt.Fprintf(out, "%sstorage%s  %s\n", colorBold, colorReset, formatCounts(w.Stock.StorageSnapshot()))
				members := w.Stock.MemberSnapshot()
				ids := make([]string, 0, len(members))
				for id := range members {
					ids = append(ids, id)
				}
				slices.Sort(ids)
				for _, id := range ids {
					fmt.Fprintf(out, "%-12s %s\n", id, formatCounts(members[id]))
				}
			})
			return nil
		})
	},
}

var stockAddCmd = &cobra.Command{
	Use:   "add <item> <qty>",
	Short: "Add items to base storage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, err := intArg(args[1], "quantity")
		if err != nil {
			return err
		}
		return withSession(cmd, func(s *session) error {
			return s.mutate(cmd.Context(), func(w *orchestrator.World) error {
				w.Stock.AddStorage(args[0], qty)
				return nil
			})
		})
	},
}

var stockTakeCmd = &cobra.Command{
	Use:   "take <item> <qty>",
	Short: "Remove items from base storage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, err := intArg(args[1], "quantity")
		if err != nil {
			return err
		}
		return withSession(cmd, func(s *session) error {
			return s.mutate(cmd.Context(), func(w *orchestrator.World) error {
				return w.Stock.TakeStorage(args[0], qty)
			})
		})
	},
}

var stockGiveCmd = &cobra.Command{
	Use:   "give <member-id> <item> <qty>",
	Short: "Put items in a member's inventory",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, err := intArg(args[2], "quantity")
		if err != nil {
			return err
		}
		return withSession(cmd, func(s *session) error {
			return s.mutate(cmd.Context(), func(w *orchestrator.World) error {
				if w.Roster.MemberTeamIndex(args[0]) < 0 {
					return fmt.Errorf("member %s is not on any team", args[0])
				}
				w.Stock.Give(args[0], args[1], qty)
				return nil
			})
		})
	},
}

func init() {
	stockCmd.AddCommand(stockListCmd, stockAddCmd, stockTakeCmd, stockGiveCmd)
	rootCmd.AddCommand(stockCmd)
}
