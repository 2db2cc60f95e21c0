package planner

import (
	"github.com/marcus/idlecrew/internal/tasks"
	"github.com/marcus/idlecrew/internal/teams"
)

// GetNextAvailableTask returns the highest-ranked incomplete backlog task
// team can execute, or the idle sentinel when none qualifies.
func (p *Planner) GetNextAvailableTask(team int) tasks.GlobalTask {
	for _, t := range p.queue.ByPriority() {
		if t.Completed {
			continue
		}
		if p.CanTeamExecuteTask(team, t) {
			return t
		}
	}
	return tasks.IdleTask()
}

// CanTeamExecuteTask reports whether team may take task: the team exists and
// has members, the task is well formed and open, and the stock required for
// its type is within the team's reach.
func (p *Planner) CanTeamExecuteTask(team int, task tasks.GlobalTask) bool {
	t, ok := p.roster.Team(team)
	if !ok || len(t.Members) == 0 {
		return false
	}
	if task.Completed || task.Normalize().Validate() != nil {
		return false
	}
	for item, qty := range p.cfg.Requirements[task.Type] {
		if p.availability(t, item) < qty {
			return false
		}
	}
	return true
}

// GetTotalResourceAmount returns storage plus everything carried by every
// team member.
func (p *Planner) GetTotalResourceAmount(item string) int {
	total := p.stock.Storage(item)
	for _, t := range p.roster.Teams() {
		total += p.carried(t, item)
	}
	return total
}

// GetCurrentItemAvailability returns storage plus what team's members carry.
func (p *Planner) GetCurrentItemAvailability(team int, item string) int {
	t, ok := p.roster.Team(team)
	if !ok {
		return p.stock.Storage(item)
	}
	return p.availability(t, item)
}

func (p *Planner) availability(t teams.Team, item string) int {
	return p.stock.Storage(item) + p.carried(t, item)
}

func (p *Planner) carried(t teams.Team, item string) int {
	n := 0
	for _, m := range t.Members {
		n += p.stock.Held(m.ID, item)
	}
	return n
}

// FindActiveGatheringTask returns the highest-ranked open gathering task
// for item.
func (p *Planner) FindActiveGatheringTask(item string) (tasks.GlobalTask, bool) {
	if item == "" {
		return tasks.GlobalTask{}, false
	}
	for _, t := range p.queue.ByPriority() {
		if !t.Completed && t.IsGathering() && t.TargetItemID == item {
			return t, true
		}
	}
	return tasks.GlobalTask{}, false
}

// ShouldContinueGathering reports whether team should keep collecting item.
// Unlimited tasks always continue; keep tasks continue while the team's
// reachable stock is under target; specified tasks continue until their
// progress reaches target.
func (p *Planner) ShouldContinueGathering(team int, item string) bool {
	task, ok := p.FindActiveGatheringTask(item)
	if !ok {
		return false
	}
	switch task.Policy {
	case tasks.PolicyKeep:
		return p.GetCurrentItemAvailability(team, item) < task.TargetQuantity
	case tasks.PolicySpecified:
		return !task.Completed && task.CurrentProgress < task.TargetQuantity
	default:
		return true
	}
}

// GetExecutableGatheringTasksAtLocation returns, in priority order, the open
// gathering tasks whose item can be collected at location by team. Keep
// tasks whose total stock already meets target are skipped.
func (p *Planner) GetExecutableGatheringTasksAtLocation(team int, location string) []tasks.GlobalTask {
	var out []tasks.GlobalTask
	for _, t := range p.queue.ByPriority() {
		if t.Completed || !t.IsGathering() {
			continue
		}
		if t.Policy == tasks.PolicyKeep && p.GetTotalResourceAmount(t.TargetItemID) >= t.TargetQuantity {
			continue
		}
		if !p.catalog.CanGather(location, t.TargetItemID) {
			continue
		}
		if !p.CanTeamExecuteTask(team, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// FindMatchingGlobalTask finds the backlog task that serves teamTask for team
// at location.
func (p *Planner) FindMatchingGlobalTask(teamTask teams.TeamTask, team int, location string) (tasks.GlobalTask, bool) {
	switch teamTask.Type {
	case tasks.TypeGathering:
		if found := p.GetExecutableGatheringTasksAtLocation(team, location); len(found) > 0 {
			return found[0], true
		}
	case tasks.TypeAdventure:
		return p.firstOfType(team, tasks.TypeAdventure, func(t tasks.GlobalTask) bool {
			return t.TargetItemID == "" || t.TargetItemID == location
		})
	case tasks.TypeConstruction, tasks.TypeCooking, tasks.TypeCrafting:
		return p.firstOfType(team, teamTask.Type, nil)
	case tasks.TypeAll:
		if next := p.GetNextAvailableTask(team); !next.IsIdle() {
			return next, true
		}
	}
	return tasks.GlobalTask{}, false
}

func (p *Planner) firstOfType(team int, typ tasks.TaskType, match func(tasks.GlobalTask) bool) (tasks.GlobalTask, bool) {
	for _, t := range p.queue.ByPriority() {
		if t.Completed || t.Type != typ {
			continue
		}
		if match != nil && !match(t) {
			continue
		}
		if p.CanTeamExecuteTask(team, t) {
			return t, true
		}
	}
	return tasks.GlobalTask{}, false
}

// GetTargetItemForTeam returns the item team should gather at location,
// walking its task slots in priority order and skipping slots the team is
// too small or under-stocked for. It returns "" when nothing applies.
func (p *Planner) GetTargetItemForTeam(team int, location string) string {
	if t, ok := p.gatheringTarget(team, location); ok {
		return t.TargetItemID
	}
	return ""
}

func (p *Planner) gatheringTarget(team int, location string) (tasks.GlobalTask, bool) {
	for _, slot := range p.teamSlots(team) {
		if slot.Type != tasks.TypeGathering && slot.Type != tasks.TypeAll {
			continue
		}
		if !p.roster.MeetsRequirements(team, slot) {
			continue
		}
		// all-mode slots gather whatever is gatherable here
		found := p.GetExecutableGatheringTasksAtLocation(team, location)
		if len(found) > 0 {
			return found[0], true
		}
	}
	return tasks.GlobalTask{}, false
}

// teamSlots returns team's task slots, or a single implicit slot for its
// assigned type when it has none.
func (p *Planner) teamSlots(team int) []teams.TeamTask {
	slots := p.roster.TeamTasks(team)
	if len(slots) > 0 {
		return slots
	}
	t, ok := p.roster.Team(team)
	if !ok || t.AssignedTask == "" || t.AssignedTask == tasks.TypeIdle {
		return nil
	}
	return []teams.TeamTask{{Priority: 1, Type: t.AssignedTask, MinTeamSize: 1}}
}

// carriedTarget finds an open gathering task whose item some member of team
// is carrying.
func (p *Planner) carriedTarget(t teams.Team) (tasks.GlobalTask, bool) {
	for _, task := range p.queue.ByPriority() {
		if task.Completed || !task.IsGathering() || task.TargetItemID == "" {
			continue
		}
		if p.carried(t, task.TargetItemID) > 0 {
			return task, true
		}
	}
	return tasks.GlobalTask{}, false
}
