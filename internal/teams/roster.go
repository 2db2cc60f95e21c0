package teams

import (
	"fmt"
	"sort"
	"time"

	"github.com/marcus/idlecrew/internal/events"
	"github.com/marcus/idlecrew/internal/logging"
	"github.com/marcus/idlecrew/internal/tasks"
)

// ResourceChecker decides whether stock covers a team task's requirements.
// The roster treats a nil checker as always satisfied.
type ResourceChecker interface {
	HasResources(teamIndex int, task TeamTask) bool
}

// Roster owns every team and its task list. It is not safe for concurrent
// use; callers serialize access.
type Roster struct {
	teams    []*Team
	maxTasks int
	baseID   string
	pub      events.Publisher
	now      func() time.Time
	logger   *logging.Logger
	checker  ResourceChecker

	// pendingCombat holds teams whose combat end awaits the next pass.
	pendingCombat []*Team
}

// Option configures a Roster.
type Option func(*Roster)

// WithMaxTasks lowers the per-team task slot count.
func WithMaxTasks(n int) Option {
	return func(r *Roster) {
		if n > 0 && n <= MaxTeamTasks {
			r.maxTasks = n
		}
	}
}

// WithPublisher routes roster notifications to p.
func WithPublisher(p events.Publisher) Option {
	return func(r *Roster) {
		if p != nil {
			r.pub = p
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Roster) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Roster) {
		r.logger = l
	}
}

// WithBaseLocation sets where new teams start.
func WithBaseLocation(id string) Option {
	return func(r *Roster) {
		r.baseID = id
	}
}

// NewRoster creates an empty roster.
func NewRoster(opts ...Option) *Roster {
	r := &Roster{
		maxTasks: MaxTeamTasks,
		baseID:   "base",
		pub:      events.Discard,
		now:      time.Now,
		logger:   logging.Component("teams"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetResourceChecker installs the stock check used by CanExecuteTask.
func (r *Roster) SetResourceChecker(c ResourceChecker) {
	r.checker = c
}

// MaxTasks returns the per-team slot count.
func (r *Roster) MaxTasks() int { return r.maxTasks }

// Len returns the number of teams.
func (r *Roster) Len() int { return len(r.teams) }

// IsValidIndex reports whether i names a team.
func (r *Roster) IsValidIndex(i int) bool {
	return i >= 0 && i < len(r.teams)
}

func (r *Roster) team(i int) *Team {
	if !r.IsValidIndex(i) {
		return nil
	}
	return r.teams[i]
}

func (r *Roster) indexOf(t *Team) int {
	for i, candidate := range r.teams {
		if candidate == t {
			return i
		}
	}
	return -1
}

// Team returns a copy of team i.
func (r *Roster) Team(i int) (Team, bool) {
	t := r.team(i)
	if t == nil {
		return Team{}, false
	}
	return t.clone(), true
}

// Teams returns copies of every team in index order.
func (r *Roster) Teams() []Team {
	out := make([]Team, len(r.teams))
	for i, t := range r.teams {
		out[i] = t.clone()
	}
	return out
}

// CreateTeam appends a new idle team at base and returns its index.
func (r *Roster) CreateTeam(name string) int {
	if name == "" {
		name = fmt.Sprintf("Team %d", len(r.teams)+1)
	}
	r.teams = append(r.teams, &Team{
		Name:         name,
		AssignedTask: tasks.TypeIdle,
		Active:       true,
		ActionState:  StateIdle,
		CombatState:  CombatNone,
		LocationID:   r.baseID,
		key:          teamKeys.Add(1),
	})
	i := len(r.teams) - 1
	r.logger.Infof("team created: %d %q", i, name)
	r.pub.Publish(events.Event{Type: events.TeamCreated, TeamIndex: i, Message: name})
	return i
}

// DeleteTeam removes team i. Later teams shift down by one index.
func (r *Roster) DeleteTeam(i int) bool {
	t := r.team(i)
	if t == nil {
		r.logger.Warnf("delete team: invalid index %d", i)
		return false
	}
	r.teams = append(r.teams[:i], r.teams[i+1:]...)
	r.dropPending(t)
	r.pub.Publish(events.Event{Type: events.TeamDeleted, TeamIndex: i, Message: t.Name})
	return true
}

// SetTeamName renames team i.
func (r *Roster) SetTeamName(i int, name string) bool {
	t := r.team(i)
	if t == nil || name == "" {
		return false
	}
	t.Name = name
	return true
}

// SetActive toggles whether the team takes part in turn passes.
func (r *Roster) SetActive(i int, active bool) bool {
	t := r.team(i)
	if t == nil {
		return false
	}
	t.Active = active
	return true
}

// AssignMember adds m to team i, removing it from any other team first.
func (r *Roster) AssignMember(i int, m Member) bool {
	t := r.team(i)
	if t == nil || m.ID == "" {
		r.logger.Warnf("assign member: invalid team %d or empty member id", i)
		return false
	}
	if prev := r.MemberTeamIndex(m.ID); prev >= 0 {
		if prev == i {
			return true
		}
		r.RemoveMember(prev, m.ID)
	}
	t.Members = append(t.Members, m)
	r.pub.Publish(events.Event{Type: events.MemberAssigned, TeamIndex: i, MemberID: m.ID})
	return true
}

// RemoveMember detaches a character from team i.
func (r *Roster) RemoveMember(i int, memberID string) bool {
	t := r.team(i)
	if t == nil {
		return false
	}
	for k, m := range t.Members {
		if m.ID == memberID {
			t.Members = append(t.Members[:k], t.Members[k+1:]...)
			r.pub.Publish(events.Event{Type: events.MemberRemoved, TeamIndex: i, MemberID: memberID})
			return true
		}
	}
	return false
}

// MemberTeamIndex returns the index of the team holding memberID, or -1.
func (r *Roster) MemberTeamIndex(memberID string) int {
	for i, t := range r.teams {
		for _, m := range t.Members {
			if m.ID == memberID {
				return i
			}
		}
	}
	return -1
}

// UpdateMemberVitals records a character's current health and stamina.
func (r *Roster) UpdateMemberVitals(i int, memberID string, health, stamina int) bool {
	t := r.team(i)
	if t == nil {
		return false
	}
	for k := range t.Members {
		if t.Members[k].ID == memberID {
			t.Members[k].Health = health
			t.Members[k].Stamina = stamina
			return true
		}
	}
	return false
}

// SetTeamTask sets the team's assigned task type.
func (r *Roster) SetTeamTask(i int, typ tasks.TaskType) bool {
	t := r.team(i)
	if t == nil || !typ.IsValid() {
		return false
	}
	if t.AssignedTask == typ {
		return true
	}
	t.AssignedTask = typ
	r.pub.Publish(events.Event{Type: events.TeamTaskChanged, TeamIndex: i, TaskType: string(typ)})
	return true
}

// SetLocation records where the team currently is.
func (r *Roster) SetLocation(i int, locationID string) bool {
	t := r.team(i)
	if t == nil {
		return false
	}
	t.LocationID = locationID
	return true
}

// SetGatheringLocation sets the team's preferred gathering location.
func (r *Roster) SetGatheringLocation(i int, locationID string) bool {
	t := r.team(i)
	if t == nil {
		return false
	}
	t.GatheringLocationID = locationID
	return true
}

// SetAdventureLocation sets the team's preferred adventure destination.
func (r *Roster) SetAdventureLocation(i int, locationID string) bool {
	t := r.team(i)
	if t == nil {
		return false
	}
	t.AdventureLocationID = locationID
	return true
}

// Snapshot captures team i's task state.
func (r *Roster) Snapshot(i int) (Snapshot, bool) {
	t := r.team(i)
	if t == nil {
		return Snapshot{}, false
	}
	c := t.clone()
	return Snapshot{
		TeamIndex:    i,
		Name:         c.Name,
		Tasks:        c.Tasks,
		AssignedTask: c.AssignedTask,
		ActionState:  c.ActionState,
		CombatState:  c.CombatState,
		TakenAt:      r.now(),
	}, true
}

// Restore replaces every team with previously persisted copies. Task lists
// are re-sorted and states are validated; no events are published.
func (r *Roster) Restore(teams []Team) error {
	restored := make([]*Team, 0, len(teams))
	for i := range teams {
		t := teams[i].clone()
		if !t.ActionState.IsValid() {
			t.ActionState = StateIdle
		}
		if t.CombatState == "" {
			t.CombatState = CombatNone
		}
		if len(t.Tasks) > r.maxTasks {
			return fmt.Errorf("team %q: %w", t.Name, ErrTeamTaskFull)
		}
		seen := make(map[int]bool)
		for k, task := range t.Tasks {
			task = task.Normalize()
			if err := task.Validate(); err != nil {
				return fmt.Errorf("team %q: %w", t.Name, err)
			}
			if seen[task.Priority] {
				return fmt.Errorf("team %q: %w: %d", t.Name, ErrDuplicatePriority, task.Priority)
			}
			seen[task.Priority] = true
			t.Tasks[k] = task
		}
		sortTasks(t.Tasks)
		if t.key == 0 {
			t.key = teamKeys.Add(1)
		}
		restored = append(restored, &t)
	}
	r.teams = restored
	r.pendingCombat = nil
	for _, t := range r.teams {
		if t.CombatState == CombatEnding {
			r.pendingCombat = append(r.pendingCombat, t)
		}
	}
	return nil
}

func sortTasks(list []TeamTask) {
	sort.SliceStable(list, func(a, b int) bool { return list[a].Priority < list[b].Priority })
}
