package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/idlecrew/internal/orchestrator"
	"github.com/marcus/idlecrew/internal/tasks"
	"github.com/marcus/idlecrew/internal/teams"
)

var teamCmd = &cobra.Command{
	Use:     "teams",
	Aliases: []string{"team"},
	Short:   "Manage teams, members and team task lists",
	Long: `Teams are addressed by index as shown by "idlecrew teams list".

Each team carries up to three task slots ranked 1-3. An idle team picks
the best slot it can run; a running team keeps its slot until the work is
done, it returns to base or it is switched manually.`,
}

var teamListCmd = &cobra.Command{
	Use:   "list",
	Short: "List teams",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withSession(cmd, func(s *session) error {
			var list []teams.Team
			s.orch.View(func(w *orchestrator.World) { list = w.Roster.Teams() })
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No teams.")
				return nil
			}
			for i, t := range list {
				status := string(t.ActionState)
				if t.InCombat {
					status += "/" + string(t.CombatState)
				}
				if !t.Active {
					status = colorYellow + "inactive" + colorReset
				}
				fmt.Fprintf(out, "%s[%d] %s%s  %s  @%s  task=%s\n", colorBold, i, t.Name, colorReset, status, t.LocationID, t.AssignedTask)
				for _, m := range t.Members {
					fmt.Fprintf(out, "    member %-12s hp=%-3d sta=%d\n", m.ID, m.Health, m.Stamina)
				}
				for _, slot := range t.Tasks {
					marker := " "
					if slot.Active {
						marker = "*"
					}
					fmt.Fprintf(out, "    %s slot %d %-13s min=%d res=%s items=%s\n", marker, slot.Priority, slot.Type,
						slot.MinTeamSize, formatCounts(slot.RequiredResources), formatCounts(slot.RequiredItems))
				}
			}
			return nil
		})
	},
}

var teamCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a team at base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inactive, _ := cmd.Flags().GetBool("inactive")
		return withSession(cmd, func(s *session) error {
			var idx int
			err := s.mutate(cmd.Context(), func(w *orchestrator.World) error {
				idx = w.Roster.CreateTeam(args[0])
				if inactive {
					w.Roster.SetActive(idx, false)
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created team %d: %s\n", idx, args[0])
			return nil
		})
	},
}

// teamEditCmd builds a subcommand whose first argument is a team index.
func teamEditCmd(use, short string, nargs int, fn func(cmd *cobra.Command, w *orchestrator.World, i int, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				err := s.mutate(cmd.Context(), func(w *orchestrator.World) error {
					if !w.Roster.IsValidIndex(i) {
						return fmt.Errorf("team %d does not exist", i)
					}
					return fn(cmd, w, i, args[1:])
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "team %d: ok\n", i)
				return nil
			})
		},
	}
}

var teamDeleteCmd = teamEditCmd("delete <index>", "Delete a team", 1, func(_ *cobra.Command, w *orchestrator.World, i int, _ []string) error {
	w.Roster.DeleteTeam(i)
	return nil
})

var teamRenameCmd = teamEditCmd("rename <index> <name>", "Rename a team", 2, func(_ *cobra.Command, w *orchestrator.World, i int, args []string) error {
	if !w.Roster.SetTeamName(i, args[0]) {
		return fmt.Errorf("invalid name")
	}
	return nil
})

var teamActivateCmd = teamEditCmd("activate <index>", "Include a team in turn passes", 1, func(_ *cobra.Command, w *orchestrator.World, i int, _ []string) error {
	w.Roster.SetActive(i, true)
	return nil
})

var teamDeactivateCmd = teamEditCmd("deactivate <index>", "Skip a team in turn passes", 1, func(_ *cobra.Command, w *orchestrator.World, i int, _ []string) error {
	w.Roster.SetActive(i, false)
	return nil
})

var teamAssignCmd = teamEditCmd("assign <index> <member-id>", "Assign a member to a team", 2, func(cmd *cobra.Command, w *orchestrator.World, i int, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	health, _ := cmd.Flags().GetInt("health")
	stamina, _ := cmd.Flags().GetInt("stamina")
	if name == "" {
		name = args[0]
	}
	if !w.Roster.AssignMember(i, teams.Member{ID: args[0], Name: name, Health: health, Stamina: stamina}) {
		return fmt.Errorf("assign %s failed", args[0])
	}
	return nil
})

var teamUnassignCmd = teamEditCmd("unassign <index> <member-id>", "Remove a member from a team", 2, func(_ *cobra.Command, w *orchestrator.World, i int, args []string) error {
	if !w.Roster.RemoveMember(i, args[0]) {
		return fmt.Errorf("member %s is not on team %d", args[0], i)
	}
	return nil
})

var teamAddTaskCmd = teamEditCmd("addtask <index>", "Add a task slot to a team", 1, func(cmd *cobra.Command, w *orchestrator.World, i int, _ []string) error {
	priority, _ := cmd.Flags().GetInt("priority")
	typeName, _ := cmd.Flags().GetString("type")
	resources, _ := cmd.Flags().GetString("resources")
	items, _ := cmd.Flags().GetString("items")
	minSize, _ := cmd.Flags().GetInt("min-size")
	duration, _ := cmd.Flags().GetDuration("duration")

	typ, err := tasks.ParseTaskType(typeName)
	if err != nil {
		return err
	}
	res, err := parseCounts(resources)
	if err != nil {
		return err
	}
	req, err := parseCounts(items)
	if err != nil {
		return err
	}
	if priority == 0 {
		priority = nextSlot(w.Roster.TeamTasks(i))
	}
	return w.Roster.AddTeamTask(i, teams.TeamTask{
		Priority:          priority,
		Type:              typ,
		RequiredResources: res,
		RequiredItems:     req,
		MinTeamSize:       minSize,
		EstimatedDuration: duration,
	})
})

// nextSlot returns the lowest free slot priority.
func nextSlot(slots []teams.TeamTask) int {
	taken := make(map[int]bool, len(slots))
	for _, s := range slots {
		taken[s.Priority] = true
	}
	for p := 1; ; p++ {
		if !taken[p] {
			return p
		}
	}
}

var teamRemoveTaskCmd = teamEditCmd("removetask <index> <priority>", "Remove a team task slot", 2, func(_ *cobra.Command, w *orchestrator.World, i int, args []string) error {
	p, err := intArg(args[0], "priority")
	if err != nil {
		return err
	}
	if !w.Roster.RemoveTeamTask(i, p) {
		return fmt.Errorf("team %d has no slot %d", i, p)
	}
	return nil
})

var teamSwitchCmd = teamEditCmd("switch <index>", "Force a team onto its next runnable slot", 1, func(_ *cobra.Command, w *orchestrator.World, i int, _ []string) error {
	if !w.Roster.SwitchToNextAvailableTask(i, teams.ReasonForced) {
		return fmt.Errorf("team %d has no runnable slot", i)
	}
	return nil
})

var teamLocationCmd = teamEditCmd("location <index>", "Set preferred gathering and adventure locations", 1, func(cmd *cobra.Command, w *orchestrator.World, i int, _ []string) error {
	gathering, _ := cmd.Flags().GetString("gathering")
	adventure, _ := cmd.Flags().GetString("adventure")
	catalog := w.Planner.Catalog()
	if gathering != "" {
		if !catalog.Has(gathering) {
			return fmt.Errorf("unknown location %q", gathering)
		}
		w.Roster.SetGatheringLocation(i, gathering)
	}
	if adventure != "" {
		if !catalog.Has(adventure) {
			return fmt.Errorf("unknown location %q", adventure)
		}
		w.Roster.SetAdventureLocation(i, adventure)
	}
	return nil
})

func init() {
	teamListCmd.Flags().Bool("json", false, "Output as JSON")
	teamCreateCmd.Flags().Bool("inactive", false, "Create the team inactive")

	teamAssignCmd.Flags().String("name", "", "Member display name")
	teamAssignCmd.Flags().Int("health", 100, "Member health")
	teamAssignCmd.Flags().Int("stamina", 100, "Member stamina")

	teamAddTaskCmd.Flags().IntP("priority", "p", 0, "Slot priority 1-3 (default: lowest free)")
	teamAddTaskCmd.Flags().StringP("type", "t", string(tasks.TypeGathering), "Task type")
	teamAddTaskCmd.Flags().String("resources", "", "Required storage resources, e.g. wood=10,stone=5")
	teamAddTaskCmd.Flags().String("items", "", "Required carried items, e.g. axe=1")
	teamAddTaskCmd.Flags().Int("min-size", 1, "Minimum team size")
	teamAddTaskCmd.Flags().Duration("duration", time.Minute, "Estimated duration")

	teamLocationCmd.Flags().String("gathering", "", "Preferred gathering location")
	teamLocationCmd.Flags().String("adventure", "", "Preferred adventure location")

	teamCmd.AddCommand(teamListCmd, teamCreateCmd, teamDeleteCmd, teamRenameCmd, teamActivateCmd,
		teamDeactivateCmd, teamAssignCmd, teamUnassignCmd, teamAddTaskCmd, teamRemoveTaskCmd,
		teamSwitchCmd, teamLocationCmd)
	rootCmd.AddCommand(teamCmd)
}
