package planner

import (
	"fmt"

	"github.com/marcus/idlecrew/internal/tasks"
	"github.com/marcus/idlecrew/internal/teams"
)

// allModePrefix marks reasons produced by the all-mode builder.
const allModePrefix = "All mode: "

// CreateExecutionPlanForTeam decides what team should do this turn at
// location while working on taskType.
func (p *Planner) CreateExecutionPlanForTeam(team int, location string, taskType tasks.TaskType) Plan {
	t, ok := p.roster.Team(team)
	if !ok {
		return Plan{Action: ActionNone, Reason: "invalid team"}
	}
	if !p.roster.CanInterruptAction(team) {
		return Plan{Action: ActionNone, Reason: fmt.Sprintf("team is %s", t.ActionState)}
	}

	var plan Plan
	switch taskType {
	case tasks.TypeIdle:
		plan = wait("team is idle")
	case tasks.TypeGathering:
		plan = p.gatheringPlan(team, t, location)
	case tasks.TypeAdventure:
		plan = p.adventurePlan(team, t, location)
	case tasks.TypeAll:
		plan = p.allModePlan(team, t, location)
	case tasks.TypeConstruction, tasks.TypeCooking, tasks.TypeCrafting:
		plan = p.workPlan(team, location, taskType)
	default:
		plan = Plan{Action: ActionWaitIdle, Reason: "unsupported task type"}
	}

	p.logger.DebugCtx("plan", map[string]any{
		"team":     team,
		"location": location,
		"type":     string(taskType),
		"action":   plan.Action.String(),
		"task":     plan.TaskID,
		"valid":    plan.Valid,
	})
	return plan
}

// ShouldReturnToBase reports whether team must head home from location:
// nothing to gather there, or a member is full, hurt or exhausted.
func (p *Planner) ShouldReturnToBase(team int, location string) bool {
	t, ok := p.roster.Team(team)
	if !ok {
		return false
	}
	_, hasTarget := p.gatheringTarget(team, location)
	return p.returnReason(t, hasTarget) != ""
}

func (p *Planner) returnReason(t teams.Team, hasTarget bool) string {
	if !hasTarget {
		return "no gathering target at current location"
	}
	for _, m := range t.Members {
		switch {
		case p.stock.HeldTotal(m.ID) >= p.cfg.InventoryCapacity:
			return fmt.Sprintf("%s inventory full", m.ID)
		case m.Health < p.cfg.MinHealth:
			return fmt.Sprintf("%s health low (%d)", m.ID, m.Health)
		case m.Stamina < p.cfg.MinStamina:
			return fmt.Sprintf("%s stamina low (%d)", m.ID, m.Stamina)
		}
	}
	return ""
}

func (p *Planner) gatheringPlan(team int, t teams.Team, location string) Plan {
	base := p.cfg.BaseLocation

	var target tasks.GlobalTask
	var hasTarget bool
	if location == base {
		if carried, ok := p.carriedTarget(t); ok {
			return Plan{
				Action:         ActionUnloadItems,
				TaskID:         carried.ID,
				TargetLocation: base,
				TargetItem:     carried.TargetItemID,
				Reason:         fmt.Sprintf("unload %s at base", carried.TargetItemID),
				Valid:          true,
			}
		}
		target, hasTarget = p.gatheringTarget(team, base)
		if !hasTarget {
			for _, loc := range p.cfg.GatheringLocations {
				found, ok := p.gatheringTarget(team, loc)
				if !ok {
					continue
				}
				return Plan{
					Action:         ActionMoveToLocation,
					TaskID:         found.ID,
					TargetLocation: loc,
					TargetItem:     found.TargetItemID,
					Reason:         fmt.Sprintf("gather %s at %s", found.TargetItemID, loc),
					Valid:          true,
				}
			}
			return wait("no executable gathering task at any known location")
		}
	} else {
		target, hasTarget = p.gatheringTarget(team, location)
		if reason := p.returnReason(t, hasTarget); reason != "" {
			return Plan{
				Action:         ActionReturnToBase,
				TaskID:         target.ID,
				TargetLocation: base,
				TargetItem:     target.TargetItemID,
				Reason:         reason,
				Valid:          true,
			}
		}
	}

	item := target.TargetItemID
	if p.catalog.CanGather(location, item) {
		return Plan{
			Action:         ActionExecuteGathering,
			TaskID:         target.ID,
			TargetLocation: location,
			TargetItem:     item,
			Reason:         fmt.Sprintf("gather %s", item),
			Valid:          true,
		}
	}
	dest := p.gatheringDestination(t, item)
	if dest == "" {
		return Plan{Action: ActionWaitIdle, TaskID: target.ID, TargetItem: item, Reason: fmt.Sprintf("no location yields %s", item)}
	}
	return Plan{
		Action:         ActionMoveToLocation,
		TaskID:         target.ID,
		TargetLocation: dest,
		TargetItem:     item,
		Reason:         fmt.Sprintf("gather %s at %s", item, dest),
		Valid:          true,
	}
}

// gatheringDestination prefers the team's own gathering location, then the
// configured locations, then anywhere on the map that yields item.
func (p *Planner) gatheringDestination(t teams.Team, item string) string {
	if t.GatheringLocationID != "" && p.catalog.CanGather(t.GatheringLocationID, item) {
		return t.GatheringLocationID
	}
	for _, loc := range p.cfg.GatheringLocations {
		if p.catalog.CanGather(loc, item) {
			return loc
		}
	}
	if locs := p.catalog.LocationsFor(item); len(locs) > 0 {
		return locs[0]
	}
	return ""
}

func (p *Planner) adventurePlan(team int, t teams.Team, location string) Plan {
	base := p.cfg.BaseLocation
	if location == base {
		task, ok := p.firstOfType(team, tasks.TypeAdventure, nil)
		if !ok {
			return wait("no executable adventure task")
		}
		dest := p.adventureDestination(t, task)
		if dest == "" {
			return Plan{Action: ActionWaitIdle, TaskID: task.ID, Reason: "no adventure location configured"}
		}
		return Plan{
			Action:         ActionMoveToLocation,
			TaskID:         task.ID,
			TargetLocation: dest,
			Reason:         fmt.Sprintf("adventure at %s", dest),
			Valid:          true,
		}
	}

	task, ok := p.FindMatchingGlobalTask(teams.TeamTask{Type: tasks.TypeAdventure}, team, location)
	if !ok {
		return Plan{
			Action:         ActionReturnToBase,
			TargetLocation: base,
			Reason:         "no adventure task here",
			Valid:          true,
		}
	}
	return Plan{
		Action:         ActionExecuteCombat,
		TaskID:         task.ID,
		TargetLocation: location,
		TargetItem:     task.TargetItemID,
		Reason:         fmt.Sprintf("fight at %s", location),
		Valid:          true,
	}
}

func (p *Planner) adventureDestination(t teams.Team, task tasks.GlobalTask) string {
	switch {
	case task.TargetItemID != "":
		return task.TargetItemID
	case t.AdventureLocationID != "":
		return t.AdventureLocationID
	case len(p.cfg.AdventureLocations) > 0:
		return p.cfg.AdventureLocations[0]
	}
	return ""
}

func (p *Planner) allModePlan(team int, t teams.Team, location string) Plan {
	next := p.GetNextAvailableTask(team)
	if next.IsIdle() {
		return wait("No available tasks in all-mode")
	}

	var plan Plan
	switch next.Type {
	case tasks.TypeGathering:
		plan = p.gatheringPlan(team, t, location)
	case tasks.TypeAdventure:
		plan = p.adventurePlan(team, t, location)
	case tasks.TypeConstruction, tasks.TypeCooking, tasks.TypeCrafting:
		plan = p.workPlan(team, location, next.Type)
	default:
		return Plan{Action: ActionWaitIdle, TaskID: next.ID, Reason: allModePrefix + "unsupported task type"}
	}
	plan.Reason = allModePrefix + plan.Reason
	return plan
}

func (p *Planner) workPlan(team int, location string, typ tasks.TaskType) Plan {
	base := p.cfg.BaseLocation
	task, ok := p.firstOfType(team, typ, nil)
	if !ok {
		return wait(fmt.Sprintf("no executable %s task", typ))
	}
	if location != base {
		return Plan{
			Action:         ActionReturnToBase,
			TaskID:         task.ID,
			TargetLocation: base,
			TargetItem:     task.TargetItemID,
			Reason:         fmt.Sprintf("%s happens at base", typ),
			Valid:          true,
		}
	}
	return Plan{
		Action:         ActionExecuteWork,
		TaskID:         task.ID,
		TargetLocation: base,
		TargetItem:     task.TargetItemID,
		Reason:         fmt.Sprintf("%s %s", typ, task.DisplayName),
		Valid:          true,
	}
}

func wait(reason string) Plan {
	return Plan{Action: ActionWaitIdle, Reason: reason, Valid: true}
}
