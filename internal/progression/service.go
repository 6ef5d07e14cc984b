package progression

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// XP award amounts for progression events.
const (
	XPPerTask        = 10
	XPFirstTaskBonus = 40
	XPPerWeek        = 50
	XPPerPlan        = 200
	XPPerfectWeek    = 75
	XPPerfectMonth   = 250
)

// Study-time boundaries for the early/night session counters.
const (
	earlyHourBefore = 7
	nightHourFrom   = 21
)

// TaskEvent carries the details of a completed task.
type TaskEvent struct {
	// Hour is the local hour (0-23) the task was completed at.
	Hour          int
	SkillCategory string
	// Practice marks the task as a practice session.
	Practice bool
}

// UnlockKind discriminates the notification types an operation can emit.
type UnlockKind string

const (
	UnlockAchievement     UnlockKind = "achievement"
	UnlockCertificateTier UnlockKind = "certificate_tier"
	UnlockLevelUp         UnlockKind = "level_up"
)

// Unlock is a newly triggered progression notification.
type Unlock struct {
	Kind  UnlockKind `json:"kind"`
	ID    string     `json:"id,omitempty"`
	Name  string     `json:"name"`
	Tier  Tier       `json:"tier,omitempty"`
	Level int        `json:"level,omitempty"`
	XP    int        `json:"xp"`
}

// Engine applies progression events to a learner state. Operations are
// synchronous, pure transformations: they mutate only the state they are
// handed and return the unlock notifications the event triggered. The
// engine itself holds no per-learner data.
type Engine struct {
	catalog *Catalog
}

// NewEngine builds an engine over the given catalog. The catalog is
// validated up front: every certificate must carry exactly three tiers
// with strictly increasing requirements and a metric the dispatch table
// knows about.
func NewEngine(catalog *Catalog) (*Engine, error) {
	seen := make(map[string]bool)
	for _, def := range catalog.certificates {
		if seen[def.ID] {
			return nil, validationErrf("certificate", "duplicate id %q", def.ID)
		}
		seen[def.ID] = true
		if _, ok := metricValue[def.Metric]; !ok {
			return nil, validationErrf("certificate", "%s: unknown metric %q", def.ID, def.Metric)
		}
		if len(def.Tiers) != 3 {
			return nil, validationErrf("certificate", "%s: want 3 tiers, got %d", def.ID, len(def.Tiers))
		}
		for i := 1; i < len(def.Tiers); i++ {
			if def.Tiers[i].Requirement <= def.Tiers[i-1].Requirement {
				return nil, validationErrf("certificate", "%s: tier requirements must strictly increase", def.ID)
			}
		}
	}
	ids := make(map[string]bool)
	for _, a := range catalog.achievements {
		if ids[a.ID] {
			return nil, validationErrf("achievement", "duplicate id %q", a.ID)
		}
		ids[a.ID] = true
	}
	return &Engine{catalog: catalog}, nil
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// RecordTaskCompleted applies a completed task: streak update for the
// event's calendar day, counters, skill category membership, the per-task
// XP award (with a one-shot first-task bonus folded into the same award),
// then certificate and achievement evaluation.
func (e *Engine) RecordTaskCompleted(s *State, ev TaskEvent, now time.Time) ([]Unlock, error) {
	if ev.Hour < 0 || ev.Hour > 23 {
		return nil, validationErrf("hour", "must be in [0,23], got %d", ev.Hour)
	}

	firstTask := s.Totals.TasksCompleted == 0

	s.Streak = UpdateStreak(s.Streak, Day(now))
	s.Totals.TasksCompleted++
	if ev.Practice {
		s.Totals.PracticeSessions++
	}
	if ev.Hour < earlyHourBefore {
		s.Totals.EarlyStudySessions++
	}
	if ev.Hour >= nightHourFrom {
		s.Totals.NightStudySessions++
	}
	if ev.SkillCategory != "" {
		s.SkillCategories[ev.SkillCategory] = true
	}

	// Single XP application even on the first task: the bonus rides along
	// in one activity entry so a retry cannot double-count it.
	amount, reason := XPPerTask, "Completed a task"
	if firstTask {
		amount += XPFirstTaskBonus
		reason = "Completed your first task"
	}
	unlocks := e.award(s, amount, reason, now)
	unlocks = append(unlocks, e.evaluate(s, now)...)
	return unlocks, nil
}

// RecordWeekCompleted applies a completed week of study.
func (e *Engine) RecordWeekCompleted(s *State, now time.Time) ([]Unlock, error) {
	s.Totals.LessonsCompleted++
	unlocks := e.award(s, XPPerWeek, "Completed a week of study", now)
	unlocks = append(unlocks, e.evaluate(s, now)...)
	return unlocks, nil
}

// RecordPlanCompleted applies a finished study plan.
func (e *Engine) RecordPlanCompleted(s *State, now time.Time) ([]Unlock, error) {
	s.Totals.PlansCompleted++
	unlocks := e.award(s, XPPerPlan, "Completed a study plan", now)
	unlocks = append(unlocks, e.evaluate(s, now)...)
	return unlocks, nil
}

// RecordPerfectWeek credits a week finished with every task done.
func (e *Engine) RecordPerfectWeek(s *State, now time.Time) ([]Unlock, error) {
	s.Totals.PerfectWeeks++
	unlocks := e.award(s, XPPerfectWeek, "Finished a perfect week", now)
	unlocks = append(unlocks, e.evaluate(s, now)...)
	return unlocks, nil
}

// RecordPerfectMonth credits a month finished with every task done.
func (e *Engine) RecordPerfectMonth(s *State, now time.Time) ([]Unlock, error) {
	s.Totals.PerfectMonths++
	unlocks := e.award(s, XPPerfectMonth, "Finished a perfect month", now)
	unlocks = append(unlocks, e.evaluate(s, now)...)
	return unlocks, nil
}

// AddXP is the public funnel for out-of-band XP grants. A negative amount
// is caller misuse and is rejected with a ValidationError.
func (e *Engine) AddXP(s *State, amount int, reason string, now time.Time) ([]Unlock, error) {
	if amount < 0 {
		return nil, validationErrf("xp amount", "must be non-negative, got %d", amount)
	}
	unlocks := e.award(s, amount, reason, now)
	unlocks = append(unlocks, e.evaluate(s, now)...)
	return unlocks, nil
}

// award applies an XP delta, appends the reason-labelled activity entry,
// and emits a level-up notification when the recomputed level crosses the
// previous one. Level transitions originate here and nowhere else.
func (e *Engine) award(s *State, amount int, reason string, now time.Time) []Unlock {
	before := LevelFromXP(s.TotalXP)
	s.TotalXP += amount
	after := LevelFromXP(s.TotalXP)

	s.logActivity(reason, amount, now)

	var unlocks []Unlock
	if after.Level > before.Level {
		s.logActivity(fmt.Sprintf("Reached level %d", after.Level), 0, now)
		unlocks = append(unlocks, Unlock{
			Kind:  UnlockLevelUp,
			Name:  fmt.Sprintf("Level %d", after.Level),
			Level: after.Level,
		})
	}
	s.LastUpdated = now
	return unlocks
}

// evaluate re-checks certificates and achievements until no further unlock
// fires. XP from a tier or achievement reward can push the level or
// another condition over a threshold within the same event, so evaluation
// repeats to a fixed point instead of assuming a single pass suffices.
func (e *Engine) evaluate(s *State, now time.Time) []Unlock {
	var all []Unlock
	for {
		round := e.evaluateCertificates(s, now)
		round = append(round, e.evaluateAchievements(s, now)...)
		if len(round) == 0 {
			return all
		}
		all = append(all, round...)
	}
}

// evaluateCertificates advances each certificate one tier at a time until
// its raw progress no longer clears the next requirement. A single event
// that jumps past several requirements therefore awards each intermediate
// tier exactly once. Tiers never regress, even when the underlying metric
// falls (a streak reset keeps the earned tier).
func (e *Engine) evaluateCertificates(s *State, now time.Time) []Unlock {
	var unlocks []Unlock
	for _, def := range e.catalog.certificates {
		value := metricValue[def.Metric](s)
		cp := s.Certificates[def.ID]
		cp.Progress = value
		for {
			next, ok := def.nextTier(cp.Tier)
			if !ok || value < next.Requirement {
				break
			}
			cp.Tier = next.Tier
			if cp.TierUnlocks == nil {
				cp.TierUnlocks = make(map[Tier]time.Time)
			}
			cp.TierUnlocks[next.Tier] = now
			unlocks = append(unlocks, Unlock{
				Kind: UnlockCertificateTier,
				ID:   def.ID,
				Name: def.Name,
				Tier: next.Tier,
				XP:   next.XP,
			})
			reason := fmt.Sprintf("%s certificate: %s tier", def.Name, next.Tier)
			unlocks = append(unlocks, e.award(s, next.XP, reason, now)...)
		}
		s.Certificates[def.ID] = cp
	}
	return unlocks
}

// evaluateAchievements unlocks every not-yet-unlocked achievement whose
// condition now holds. Membership in s.Achievements guards the XP reward:
// an id unlocks at most once no matter how many qualifying events follow.
func (e *Engine) evaluateAchievements(s *State, now time.Time) []Unlock {
	var unlocks []Unlock
	for _, a := range e.catalog.achievements {
		if _, already := s.Achievements[a.ID]; already {
			continue
		}
		if !a.Condition(s) {
			continue
		}
		s.Achievements[a.ID] = now
		unlocks = append(unlocks, Unlock{
			Kind: UnlockAchievement,
			ID:   a.ID,
			Name: a.Name,
			XP:   a.XP,
		})
		reason := fmt.Sprintf("Achievement unlocked: %s", a.Name)
		unlocks = append(unlocks, e.award(s, a.XP, reason, now)...)
	}
	return unlocks
}

// logActivity prepends an entry to the activity log, evicting the oldest
// entries past the cap.
func (s *State) logActivity(message string, xp int, now time.Time) {
	entry := ActivityEntry{
		ID:        uuid.NewString(),
		Message:   message,
		XP:        xp,
		Timestamp: now,
	}
	s.ActivityLog = append([]ActivityEntry{entry}, s.ActivityLog...)
	if len(s.ActivityLog) > activityLogCap {
		s.ActivityLog = s.ActivityLog[:activityLogCap]
	}
}
