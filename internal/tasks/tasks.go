// Package tasks defines the task type registry and the global task queue.
// The queue is a ranked backlog of up to MaxGlobalTasks objectives shared by
// every team.
package tasks

import (
	"fmt"
	"strings"
)

// Limits for the global backlog.
const (
	MaxGlobalTasks = 20
	MinPriority    = 1
	MaxPriority    = MaxGlobalTasks
)

// TaskType identifies the kind of work a task represents.
type TaskType string

const (
	TypeIdle         TaskType = "idle"
	TypeAll          TaskType = "all"
	TypeAdventure    TaskType = "adventure"
	TypeCooking      TaskType = "cooking"
	TypeConstruction TaskType = "construction"
	TypeGathering    TaskType = "gathering"
	TypeCrafting     TaskType = "crafting"
	TypeFarming      TaskType = "farming"
	TypeMining       TaskType = "mining"
	TypeHunting      TaskType = "hunting"
	TypeFishing      TaskType = "fishing"
	TypeResearch     TaskType = "research"
	TypeMedical      TaskType = "medical"
	TypeTaming       TaskType = "taming"
	TypeArt          TaskType = "art"
	TypeTrading      TaskType = "trading"
	TypeScouting     TaskType = "scouting"
)

var displayNames = map[TaskType]string{
	TypeIdle:         "Idle",
	TypeAll:          "All",
	TypeAdventure:    "Adventure",
	TypeCooking:      "Cooking",
	TypeConstruction: "Construction",
	TypeGathering:    "Gathering",
	TypeCrafting:     "Crafting",
	TypeFarming:      "Farming",
	TypeMining:       "Mining",
	TypeHunting:      "Hunting",
	TypeFishing:      "Fishing",
	TypeResearch:     "Research",
	TypeMedical:      "Medical",
	TypeTaming:       "Taming",
	TypeArt:          "Art",
	TypeTrading:      "Trading",
	TypeScouting:     "Scouting",
}

// AllTaskTypes returns every known task type in registry order.
func AllTaskTypes() []TaskType {
	return []TaskType{
		TypeIdle, TypeAll, TypeAdventure, TypeCooking, TypeConstruction,
		TypeGathering, TypeCrafting, TypeFarming, TypeMining, TypeHunting,
		TypeFishing, TypeResearch, TypeMedical, TypeTaming, TypeArt,
		TypeTrading, TypeScouting,
	}
}

// IsValid reports whether t is a registered task type.
func (t TaskType) IsValid() bool {
	_, ok := displayNames[t]
	return ok
}

// DisplayName returns the human label for the type.
func (t TaskType) DisplayName() string {
	if name, ok := displayNames[t]; ok {
		return name
	}
	return "Unknown"
}

// ParseTaskType resolves a type from its identifier or display name,
// case-insensitively.
func ParseTaskType(s string) (TaskType, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for t := range displayNames {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task type: %q", s)
}

// ConsumptionPolicy decides when a gathering task stops being needed.
type ConsumptionPolicy string

const (
	// PolicyUnlimited never stops.
	PolicyUnlimited ConsumptionPolicy = "unlimited"
	// PolicySpecified stops once progress reaches the target.
	PolicySpecified ConsumptionPolicy = "specified"
	// PolicyKeep keeps total stock at or above the target.
	PolicyKeep ConsumptionPolicy = "keep"
)

// IsValid reports whether p is a known policy.
func (p ConsumptionPolicy) IsValid() bool {
	switch p {
	case PolicyUnlimited, PolicySpecified, PolicyKeep:
		return true
	}
	return false
}

// ParsePolicy resolves a policy name case-insensitively.
func ParsePolicy(s string) (ConsumptionPolicy, error) {
	p := ConsumptionPolicy(strings.TrimSpace(strings.ToLower(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown consumption policy: %q", s)
	}
	return p, nil
}

// SkillWeight is one entry of a task type's skill weighting.
type SkillWeight struct {
	Skill  string  `json:"skill"`
	Weight float64 `json:"weight"`
}

// skillTable maps task types to their weighted skills, primary first.
var skillTable = map[TaskType][]SkillWeight{
	TypeConstruction: {{"ConstructionPower", 0.7}, {"CraftingPower", 0.3}},
	TypeCooking:      {{"CookingPower", 1.0}},
	TypeGathering:    {{"GatheringPower", 1.0}},
	TypeCrafting:     {{"CraftingPower", 0.6}, {"ProductionPower", 0.4}},
	TypeAdventure:    {{"CombatPower", 0.7}, {"DefenseValue", 0.3}},
	TypeFarming:      {{"GatheringPower", 1.0}},
	TypeMining:       {{"GatheringPower", 0.7}, {"ConstructionPower", 0.3}},
	TypeMedical:      {{"CraftingPower", 1.0}},
	TypeTaming:       {{"WorkPower", 1.0}},
}

// RelatedSkills returns a copy of the weighted skills for a task type.
// Types with no skill requirement return nil.
func RelatedSkills(t TaskType) []SkillWeight {
	skills, ok := skillTable[t]
	if !ok {
		return nil
	}
	out := make([]SkillWeight, len(skills))
	copy(out, skills)
	return out
}

// SkillNames returns the skill names for a task type, primary first.
func SkillNames(t TaskType) []string {
	skills := skillTable[t]
	names := make([]string, 0, len(skills))
	for _, s := range skills {
		names = append(names, s.Skill)
	}
	return names
}
