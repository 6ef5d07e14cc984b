package progression

// Tier is a certificate's progression stage, a strictly ordered scale.
type Tier string

const (
	TierNone   Tier = "none"
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// tierRank orders tiers for monotonicity checks.
func tierRank(t Tier) int {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 2
	case TierGold:
		return 3
	default:
		return 0
	}
}

// Metric names the counter or derived value that feeds a certificate.
type Metric string

const (
	MetricStreakDays       Metric = "streak_days"
	MetricTotalTasks       Metric = "total_tasks"
	MetricSkillCategories  Metric = "skill_categories"
	MetricEarlySessions    Metric = "early_sessions"
	MetricNightSessions    Metric = "night_sessions"
	MetricLessonsCompleted Metric = "lessons_completed"
	MetricPlansCompleted   Metric = "plans_completed"
	MetricPerfectWeeks     Metric = "perfect_weeks"
)

// metricValue maps each metric to its accessor. Adding a certificate
// metric means adding a row here, not a new branch in the engine.
var metricValue = map[Metric]func(*State) int{
	MetricStreakDays:       func(s *State) int { return s.Streak.CurrentStreak },
	MetricTotalTasks:       func(s *State) int { return s.Totals.TasksCompleted },
	MetricSkillCategories:  func(s *State) int { return len(s.SkillCategories) },
	MetricEarlySessions:    func(s *State) int { return s.Totals.EarlyStudySessions },
	MetricNightSessions:    func(s *State) int { return s.Totals.NightStudySessions },
	MetricLessonsCompleted: func(s *State) int { return s.Totals.LessonsCompleted },
	MetricPlansCompleted:   func(s *State) int { return s.Totals.PlansCompleted },
	MetricPerfectWeeks:     func(s *State) int { return s.Totals.PerfectWeeks },
}

// TierRequirement is one rung of a certificate: the metric value needed to
// reach the tier and the XP awarded on reaching it.
type TierRequirement struct {
	Tier        Tier `json:"tier"`
	Requirement int  `json:"requirement"`
	XP          int  `json:"xp"`
}

// Certificate is an immutable catalog entry with exactly three tiers
// (bronze, silver, gold) of strictly increasing requirements.
type Certificate struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Metric   Metric            `json:"metric"`
	Tiers    []TierRequirement `json:"tiers"`
}

// nextTier returns the requirement one rung above the given tier, or
// ok=false when the certificate is already gold.
func (c Certificate) nextTier(current Tier) (TierRequirement, bool) {
	rank := tierRank(current)
	if rank >= len(c.Tiers) {
		return TierRequirement{}, false
	}
	return c.Tiers[rank], true
}

// AchievementCategory groups achievements for display.
type AchievementCategory string

const (
	CategoryMilestone AchievementCategory = "milestone"
	CategorySpecial   AchievementCategory = "special"
	CategoryHidden    AchievementCategory = "hidden"
)

// Rarity grades how hard an achievement is to earn.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Achievement is a one-shot unlockable goal.
type Achievement struct {
	ID          string
	Name        string
	Description string
	Category    AchievementCategory
	Rarity      Rarity
	XP          int
	// Hint is shown instead of the description while a hidden achievement
	// is still locked. It must not give the condition away.
	Hint string
	// Condition reports whether the achievement should unlock given a
	// state snapshot.
	Condition func(*State) bool
}

func certificateCatalog() []Certificate {
	return []Certificate{
		{
			ID: "streak-keeper", Name: "Streak Keeper",
			Category: "consistency", Metric: MetricStreakDays,
			Tiers: []TierRequirement{
				{TierBronze, 7, 50},
				{TierSilver, 30, 150},
				{TierGold, 100, 500},
			},
		},
		{
			ID: "task-master", Name: "Task Master",
			Category: "volume", Metric: MetricTotalTasks,
			Tiers: []TierRequirement{
				{TierBronze, 10, 50},
				{TierSilver, 100, 200},
				{TierGold, 500, 600},
			},
		},
		{
			ID: "course-finisher", Name: "Course Finisher",
			Category: "volume", Metric: MetricLessonsCompleted,
			Tiers: []TierRequirement{
				{TierBronze, 5, 75},
				{TierSilver, 25, 250},
				{TierGold, 100, 750},
			},
		},
		{
			ID: "plan-champion", Name: "Plan Champion",
			Category: "volume", Metric: MetricPlansCompleted,
			Tiers: []TierRequirement{
				{TierBronze, 1, 100},
				{TierSilver, 5, 300},
				{TierGold, 20, 1000},
			},
		},
		{
			ID: "explorer", Name: "Explorer",
			Category: "breadth", Metric: MetricSkillCategories,
			Tiers: []TierRequirement{
				{TierBronze, 3, 50},
				{TierSilver, 6, 150},
				{TierGold, 10, 400},
			},
		},
		{
			ID: "early-bird", Name: "Early Bird",
			Category: "habits", Metric: MetricEarlySessions,
			Tiers: []TierRequirement{
				{TierBronze, 5, 50},
				{TierSilver, 25, 150},
				{TierGold, 100, 400},
			},
		},
		{
			ID: "night-owl", Name: "Night Owl",
			Category: "habits", Metric: MetricNightSessions,
			Tiers: []TierRequirement{
				{TierBronze, 5, 50},
				{TierSilver, 25, 150},
				{TierGold, 100, 400},
			},
		},
		{
			ID: "perfectionist", Name: "Perfectionist",
			Category: "habits", Metric: MetricPerfectWeeks,
			Tiers: []TierRequirement{
				{TierBronze, 1, 100},
				{TierSilver, 5, 300},
				{TierGold, 20, 800},
			},
		},
	}
}

func achievementCatalog() []Achievement {
	return []Achievement{

		// ── Milestones ─────────────────────────────────────────────────────

		{
			ID: "first-steps", Name: "First Steps",
			Description: "Complete your first task",
			Category:    CategoryMilestone, Rarity: RarityCommon, XP: 10,
			Condition: func(s *State) bool { return s.Totals.TasksCompleted >= 1 },
		},
		{
			ID: "week-one", Name: "Week One",
			Description: "Keep a 7-day study streak",
			Category:    CategoryMilestone, Rarity: RarityCommon, XP: 50,
			Condition: func(s *State) bool { return s.Streak.CurrentStreak >= 7 },
		},
		{
			ID: "marathon-learner", Name: "Marathon Learner",
			Description: "Keep a 30-day study streak",
			Category:    CategoryMilestone, Rarity: RarityRare, XP: 200,
			Condition: func(s *State) bool { return s.Streak.CurrentStreak >= 30 },
		},
		{
			ID: "centurion", Name: "Centurion",
			Description: "Complete 100 tasks",
			Category:    CategoryMilestone, Rarity: RarityEpic, XP: 250,
			Condition: func(s *State) bool { return s.Totals.TasksCompleted >= 100 },
		},
		{
			ID: "graduate", Name: "Graduate",
			Description: "Finish your first study plan",
			Category:    CategoryMilestone, Rarity: RarityRare, XP: 150,
			Condition: func(s *State) bool { return s.Totals.PlansCompleted >= 1 },
		},
		{
			ID: "rising-star", Name: "Rising Star",
			Description: "Reach level 10",
			Category:    CategoryMilestone, Rarity: RarityRare, XP: 100,
			Condition: func(s *State) bool { return LevelFromXP(s.TotalXP).Level >= 10 },
		},

		// ── Special ────────────────────────────────────────────────────────

		{
			ID: "polymath", Name: "Polymath",
			Description: "Study 5 different skill categories",
			Category:    CategorySpecial, Rarity: RarityRare, XP: 100,
			Condition: func(s *State) bool { return len(s.SkillCategories) >= 5 },
		},
		{
			ID: "unstoppable", Name: "Unstoppable",
			Description: "Keep a 100-day study streak",
			Category:    CategorySpecial, Rarity: RarityLegendary, XP: 1000,
			Condition: func(s *State) bool { return s.Streak.LongestStreak >= 100 },
		},

		// ── Hidden ─────────────────────────────────────────────────────────

		{
			ID: "dawn-patrol", Name: "Dawn Patrol",
			Description: "Study before 7am on 10 different occasions",
			Category:    CategoryHidden, Rarity: RarityRare, XP: 150,
			Hint:        "The early hours hold a secret",
			Condition:   func(s *State) bool { return s.Totals.EarlyStudySessions >= 10 },
		},
		{
			ID: "midnight-oil", Name: "Midnight Oil",
			Description: "Study after 9pm on 10 different occasions",
			Category:    CategoryHidden, Rarity: RarityRare, XP: 150,
			Hint:        "Some lessons are learned after dark",
			Condition:   func(s *State) bool { return s.Totals.NightStudySessions >= 10 },
		},
	}
}

// Catalog is the immutable definition set for certificates and
// achievements. Lookups return copies; mutating a returned value never
// affects the catalog.
type Catalog struct {
	certificates []Certificate
	achievements []Achievement
}

// NewCatalog builds the full catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		certificates: certificateCatalog(),
		achievements: achievementCatalog(),
	}
}

// Certificates returns a copy of all certificate definitions.
func (c *Catalog) Certificates() []Certificate {
	out := make([]Certificate, len(c.certificates))
	for i, def := range c.certificates {
		out[i] = copyCertificate(def)
	}
	return out
}

// Achievements returns a copy of all achievement definitions.
func (c *Catalog) Achievements() []Achievement {
	out := make([]Achievement, len(c.achievements))
	copy(out, c.achievements)
	return out
}

// CertificateByID returns the certificate with the given id, or ok=false.
func (c *Catalog) CertificateByID(id string) (Certificate, bool) {
	for _, def := range c.certificates {
		if def.ID == id {
			return copyCertificate(def), true
		}
	}
	return Certificate{}, false
}

// AchievementByID returns the achievement with the given id, or ok=false.
func (c *Catalog) AchievementByID(id string) (Achievement, bool) {
	for _, a := range c.achievements {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// CertificatesByCategory returns all certificates in the given category.
func (c *Catalog) CertificatesByCategory(category string) []Certificate {
	var out []Certificate
	for _, def := range c.certificates {
		if def.Category == category {
			out = append(out, copyCertificate(def))
		}
	}
	return out
}

// AchievementsByRarity returns all achievements of the given rarity.
func (c *Catalog) AchievementsByRarity(r Rarity) []Achievement {
	var out []Achievement
	for _, a := range c.achievements {
		if a.Rarity == r {
			out = append(out, a)
		}
	}
	return out
}

func copyCertificate(def Certificate) Certificate {
	cp := def
	cp.Tiers = make([]TierRequirement, len(def.Tiers))
	copy(cp.Tiers, def.Tiers)
	return cp
}
