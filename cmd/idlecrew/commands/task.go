package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marcus/idlecrew/internal/orchestrator"
	"github.com/marcus/idlecrew/internal/tasks"
)

var taskCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"task"},
	Short:   "Manage the global task backlog",
	Long: `List, add, re-rank and remove the global tasks teams draw from.

The backlog holds at most 20 tasks ranked 1 (first) to 20. Inserting at a
taken priority pushes that task and everything below it down by one.`,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backlog tasks by priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withSession(cmd, func(s *session) error {
			var list []tasks.GlobalTask
			s.orch.View(func(w *orchestrator.World) { list = w.Queue.ByPriority() })
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No tasks in the backlog.")
				return nil
			}
			fmt.Fprintf(out, "%s%-4s %-38s %-13s %-10s %-10s %s%s\n", colorBold, "PRI", "ID", "TYPE", "POLICY", "PROGRESS", "NAME", colorReset)
			for _, t := range list {
				progress := fmt.Sprintf("%d/%d", t.CurrentProgress, t.TargetQuantity)
				if t.Policy == tasks.PolicyUnlimited {
					progress = fmt.Sprintf("%d/-", t.CurrentProgress)
				}
				name := t.DisplayName
				if t.Completed {
					name = colorGreen + name + " (done)" + colorReset
				}
				fmt.Fprintf(out, "%-4d %-38s %-13s %-10s %-10s %s\n", t.Priority, t.ID, t.Type, t.Policy, progress, name)
			}
			return nil
		})
	},
}

var taskAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a task to the backlog",
	Long: `Add a global task. Without --priority the task goes to the bottom of
the backlog. Gathering tasks take an item; adventure tasks take a location
as their target.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskAdd,
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	typeName, _ := cmd.Flags().GetString("type")
	item, _ := cmd.Flags().GetString("target")
	qty, _ := cmd.Flags().GetInt("quantity")
	policyName, _ := cmd.Flags().GetString("policy")
	priority, _ := cmd.Flags().GetInt("priority")

	typ, err := tasks.ParseTaskType(typeName)
	if err != nil {
		return err
	}
	policy, err := tasks.ParsePolicy(policyName)
	if err != nil {
		return err
	}
	if id == "" {
		id = uuid.NewString()
	}

	return withSession(cmd, func(s *session) error {
		task := tasks.GlobalTask{
			ID:             id,
			DisplayName:    args[0],
			Priority:       priority,
			Type:           typ,
			TargetItemID:   item,
			TargetQuantity: qty,
			Policy:         policy,
		}
		var added tasks.GlobalTask
		err := s.mutate(cmd.Context(), func(w *orchestrator.World) error {
			if task.Priority == 0 {
				task.Priority = min(w.Queue.Len()+1, tasks.MaxPriority)
			}
			i, err := w.Queue.Add(task)
			if err != nil {
				return err
			}
			added, _ = w.Queue.Get(i)
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s%s%s at priority %d (%s)\n", colorCyan, added.DisplayName, colorReset, added.Priority, added.ID)
		return nil
	})
}

// taskIndexCmd builds a subcommand that edits the task named by its first
// argument.
func taskIndexCmd(use, short string, nargs int, fn func(w *orchestrator.World, i int, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				err := s.mutate(cmd.Context(), func(w *orchestrator.World) error {
					i := w.Queue.IndexOf(args[0])
					if i < 0 {
						return fmt.Errorf("task %q not found", args[0])
					}
					return fn(w, i, args[1:])
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
				return nil
			})
		},
	}
}

func intArg(raw, what string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, raw)
	}
	return n, nil
}

var taskRemoveCmd = taskIndexCmd("remove <id>", "Remove a task", 1, func(w *orchestrator.World, i int, _ []string) error {
	if !w.Queue.Remove(i) {
		return fmt.Errorf("remove failed")
	}
	return nil
})

var taskPriorityCmd = taskIndexCmd("priority <id> <priority>", "Move a task to a new priority", 2, func(w *orchestrator.World, i int, args []string) error {
	p, err := intArg(args[0], "priority")
	if err != nil {
		return err
	}
	if !w.Queue.UpdatePriority(i, p) {
		return fmt.Errorf("priority %d outside [%d,%d]", p, tasks.MinPriority, tasks.MaxPriority)
	}
	return nil
})

var taskQuantityCmd = taskIndexCmd("quantity <id> <qty>", "Change a task's target quantity", 2, func(w *orchestrator.World, i int, args []string) error {
	q, err := intArg(args[0], "quantity")
	if err != nil {
		return err
	}
	if !w.Queue.UpdateTargetQuantity(i, q) {
		return fmt.Errorf("quantity %d not allowed for this task", q)
	}
	return nil
})

var taskProgressCmd = taskIndexCmd("progress <id> <delta>", "Record progress on a task", 2, func(w *orchestrator.World, i int, args []string) error {
	d, err := intArg(args[0], "delta")
	if err != nil {
		return err
	}
	t, _ := w.Queue.Get(i)
	w.Queue.UpdateProgress(t.ID, d)
	return nil
})

var taskCompleteCmd = taskIndexCmd("complete <id>", "Mark a task complete", 1, func(w *orchestrator.World, i int, _ []string) error {
	if t, _ := w.Queue.Get(i); t.Completed {
		return fmt.Errorf("task %s already complete", t.ID)
	}
	if !w.Queue.Complete(i) {
		return fmt.Errorf("task %d could not be completed", i)
	}
	return nil
})

var taskUpCmd = taskIndexCmd("up <id>", "Move a task one rank up", 1, func(w *orchestrator.World, i int, _ []string) error {
	if !w.Queue.MoveUp(i) {
		return fmt.Errorf("task is already first")
	}
	return nil
})

var taskDownCmd = taskIndexCmd("down <id>", "Move a task one rank down", 1, func(w *orchestrator.World, i int, _ []string) error {
	if !w.Queue.MoveDown(i) {
		return fmt.Errorf("task is already last")
	}
	return nil
})

var taskClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop completed tasks from the backlog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *session) error {
			var n int
			err := s.mutate(cmd.Context(), func(w *orchestrator.World) error {
				n = w.Queue.ClearCompleted()
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed tasks\n", n)
			return nil
		})
	},
}

func init() {
	taskListCmd.Flags().Bool("json", false, "Output as JSON")

	taskAddCmd.Flags().String("id", "", "Task id (default: random uuid)")
	taskAddCmd.Flags().StringP("type", "t", string(tasks.TypeGathering), "Task type")
	taskAddCmd.Flags().String("target", "", "Target item (gathering) or location (adventure)")
	taskAddCmd.Flags().IntP("quantity", "q", 0, "Target quantity")
	taskAddCmd.Flags().String("policy", string(tasks.PolicyUnlimited), "Consumption policy: specified, keep or unlimited")
	taskAddCmd.Flags().IntP("priority", "p", 0, "Priority 1-20 (default: last)")

	taskCmd.AddCommand(taskListCmd, taskAddCmd, taskRemoveCmd, taskPriorityCmd, taskQuantityCmd,
		taskProgressCmd, taskCompleteCmd, taskUpCmd, taskDownCmd, taskClearCmd)
	rootCmd.AddCommand(taskCmd)
}
