package progression

import (
	"sort"
	"time"
)

// StreakSummary is the read-only streak projection for display.
type StreakSummary struct {
	Current     int  `json:"current"`
	Longest     int  `json:"longest"`
	ActiveToday bool `json:"activeToday"`
	TotalDays   int  `json:"totalDays"`
}

// XPSummary is the read-only XP projection. Level fields are recomputed
// from total XP on every call.
type XPSummary struct {
	TotalXP int `json:"totalXP"`
	LevelInfo
}

// StatsView exposes the lifetime counters plus the touched skill categories.
type StatsView struct {
	Totals
	SkillCategories []string `json:"skillCategories"`
}

// TierStatus annotates one certificate tier with its unlock state.
type TierStatus struct {
	Tier        Tier       `json:"tier"`
	Requirement int        `json:"requirement"`
	XP          int        `json:"xp"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlockedAt,omitempty"`
}

// CertificateView is one certificate annotated with the learner's progress.
type CertificateView struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Category string       `json:"category"`
	Metric   Metric       `json:"metric"`
	Tier     Tier         `json:"tier"`
	Progress int          `json:"progress"`
	Tiers    []TierStatus `json:"tiers"`
}

// AchievementView is one achievement annotated with unlock status. For a
// still-locked hidden achievement the description is replaced by its hint.
type AchievementView struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Category    AchievementCategory `json:"category"`
	Rarity      Rarity              `json:"rarity"`
	XP          int                 `json:"xp"`
	Unlocked    bool                `json:"unlocked"`
	UnlockedAt  *time.Time          `json:"unlockedAt,omitempty"`
}

// ProgressView bundles the three headline projections.
type ProgressView struct {
	Streak StreakSummary `json:"streak"`
	XP     XPSummary     `json:"xp"`
	Stats  StatsView     `json:"stats"`
}

func streakSummary(s *State, today string) StreakSummary {
	return StreakSummary{
		Current:     s.Streak.CurrentStreak,
		Longest:     s.Streak.LongestStreak,
		ActiveToday: ActiveOn(s.Streak, today),
		TotalDays:   s.Streak.TotalStudyDays,
	}
}

func xpSummary(s *State) XPSummary {
	return XPSummary{TotalXP: s.TotalXP, LevelInfo: LevelFromXP(s.TotalXP)}
}

func statsView(s *State) StatsView {
	cats := make([]string, 0, len(s.SkillCategories))
	for c := range s.SkillCategories {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return StatsView{Totals: s.Totals, SkillCategories: cats}
}

func certificateViews(catalog *Catalog, s *State) []CertificateView {
	defs := catalog.Certificates()
	out := make([]CertificateView, 0, len(defs))
	for _, def := range defs {
		cp := s.Certificates[def.ID]
		view := CertificateView{
			ID:       def.ID,
			Name:     def.Name,
			Category: def.Category,
			Metric:   def.Metric,
			Tier:     cp.Tier,
			Progress: cp.Progress,
		}
		if view.Tier == "" {
			view.Tier = TierNone
		}
		for _, tr := range def.Tiers {
			status := TierStatus{
				Tier:        tr.Tier,
				Requirement: tr.Requirement,
				XP:          tr.XP,
				Unlocked:    tierRank(cp.Tier) >= tierRank(tr.Tier),
			}
			if at, ok := cp.TierUnlocks[tr.Tier]; ok {
				unlockedAt := at
				status.UnlockedAt = &unlockedAt
			}
			view.Tiers = append(view.Tiers, status)
		}
		out = append(out, view)
	}
	return out
}

func achievementViews(catalog *Catalog, s *State) []AchievementView {
	defs := catalog.Achievements()
	out := make([]AchievementView, 0, len(defs))
	for _, a := range defs {
		view := AchievementView{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Category:    a.Category,
			Rarity:      a.Rarity,
			XP:          a.XP,
		}
		if at, ok := s.Achievements[a.ID]; ok {
			view.Unlocked = true
			unlockedAt := at
			view.UnlockedAt = &unlockedAt
		} else if a.Category == CategoryHidden {
			view.Description = a.Hint
		}
		out = append(out, view)
	}
	return out
}
