package progression

// Level curve parameters. Level 1 costs levelBaseCost XP; each subsequent
// level costs the previous level's cost multiplied by levelGrowth, floored
// to an integer. Progression stops at maxLevel.
const (
	levelBaseCost = 100
	levelGrowth   = 1.25
	maxLevel      = 50
)

// LevelInfo is the derived view of a learner's position on the level curve.
// It is always recomputed from total XP, never stored.
type LevelInfo struct {
	Level           int `json:"level"`
	XPInLevel       int `json:"xpInLevel"`
	XPToNext        int `json:"xpToNextLevel"`
	ProgressPercent int `json:"progressPercent"`
}

// LevelFromXP computes the level reached with totalXP via a single forward
// scan from level 1. It is a pure function of totalXP: any sequence of XP
// awards summing to the same total yields the same result.
//
// At maxLevel there are no further transitions: XPInLevel keeps
// accumulating and ProgressPercent is pinned to 100.
func LevelFromXP(totalXP int) LevelInfo {
	if totalXP < 0 {
		totalXP = 0
	}

	level := 1
	cost := levelBaseCost
	remaining := totalXP
	for level < maxLevel && remaining >= cost {
		remaining -= cost
		level++
		cost = int(float64(cost) * levelGrowth)
	}

	pct := 0
	if cost > 0 {
		pct = (100*remaining + cost/2) / cost
	}
	if level == maxLevel || pct > 100 {
		pct = 100
	}

	return LevelInfo{
		Level:           level,
		XPInLevel:       remaining,
		XPToNext:        cost,
		ProgressPercent: pct,
	}
}
