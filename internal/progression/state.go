package progression

import "time"

const (
	// stateVersion is bumped when the schema changes so Load can apply
	// migrations in the future.
	stateVersion = 1

	// activityLogCap bounds the activity log; oldest entries are evicted.
	activityLogCap = 50
)

// Totals are the lifetime counters. Every field is non-negative and
// monotonically non-decreasing.
type Totals struct {
	TasksCompleted     int `json:"tasksCompleted"`
	LessonsCompleted   int `json:"lessonsCompleted"`
	PlansCompleted     int `json:"plansCompleted"`
	PerfectWeeks       int `json:"perfectWeeks"`
	PerfectMonths      int `json:"perfectMonths"`
	EarlyStudySessions int `json:"earlyStudySessions"`
	NightStudySessions int `json:"nightStudySessions"`
	PracticeSessions   int `json:"practiceSessions"`
}

// CertificateProgress is the learner's position on one certificate: the
// tier reached so far and the raw metric value at last evaluation. Tier
// only ever advances.
type CertificateProgress struct {
	Tier        Tier               `json:"tier"`
	Progress    int                `json:"progress"`
	TierUnlocks map[Tier]time.Time `json:"tierUnlocks,omitempty"`
}

// ActivityEntry is one human-readable progression event.
type ActivityEntry struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	XP        int       `json:"xp"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the authoritative gamification record for one learner. It is
// mutated only through Engine operations; level and tier views are derived
// on read, never stored.
type State struct {
	Version int `json:"version"`

	Streak  Streak `json:"streak"`
	TotalXP int    `json:"totalXP"`
	Totals  Totals `json:"totals"`

	SkillCategories map[string]bool                `json:"skillCategories"`
	Certificates    map[string]CertificateProgress `json:"certificates"`
	Achievements    map[string]time.Time           `json:"achievements"`

	// ActivityLog holds the most recent events first, capped at activityLogCap.
	ActivityLog []ActivityEntry `json:"activityLog"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// NewState returns an all-zero state with initialized maps and the current
// version. Certificates start at tier none with zero progress.
func NewState(catalog *Catalog) *State {
	s := &State{
		Version:         stateVersion,
		SkillCategories: make(map[string]bool),
		Certificates:    make(map[string]CertificateProgress),
		Achievements:    make(map[string]time.Time),
	}
	for _, def := range catalog.Certificates() {
		s.Certificates[def.ID] = CertificateProgress{Tier: TierNone}
	}
	return s
}

// Normalize repairs a state after deserialization: nil maps are
// initialized, missing catalog certificates are seeded at tier none, the
// longest streak is lifted to at least the current streak, and the
// activity log is trimmed to its cap. Derived values (level, percent) are
// never trusted from storage; they are recomputed on every read.
func (s *State) Normalize(catalog *Catalog) {
	if s.SkillCategories == nil {
		s.SkillCategories = make(map[string]bool)
	}
	if s.Certificates == nil {
		s.Certificates = make(map[string]CertificateProgress)
	}
	if s.Achievements == nil {
		s.Achievements = make(map[string]time.Time)
	}
	for _, def := range catalog.Certificates() {
		if _, ok := s.Certificates[def.ID]; !ok {
			s.Certificates[def.ID] = CertificateProgress{Tier: TierNone}
		}
	}
	if s.Streak.LongestStreak < s.Streak.CurrentStreak {
		s.Streak.LongestStreak = s.Streak.CurrentStreak
	}
	if len(s.ActivityLog) > activityLogCap {
		s.ActivityLog = s.ActivityLog[:activityLogCap]
	}
	s.Version = stateVersion
}

// Clone returns a deep copy of the state with all maps and slices duplicated.
func (s *State) Clone() *State {
	cp := *s
	cp.SkillCategories = make(map[string]bool, len(s.SkillCategories))
	for k, v := range s.SkillCategories {
		cp.SkillCategories[k] = v
	}
	cp.Certificates = make(map[string]CertificateProgress, len(s.Certificates))
	for k, v := range s.Certificates {
		if v.TierUnlocks != nil {
			unlocks := make(map[Tier]time.Time, len(v.TierUnlocks))
			for t, at := range v.TierUnlocks {
				unlocks[t] = at
			}
			v.TierUnlocks = unlocks
		}
		cp.Certificates[k] = v
	}
	cp.Achievements = make(map[string]time.Time, len(s.Achievements))
	for k, v := range s.Achievements {
		cp.Achievements[k] = v
	}
	cp.ActivityLog = make([]ActivityEntry, len(s.ActivityLog))
	copy(cp.ActivityLog, s.ActivityLog)
	return &cp
}
