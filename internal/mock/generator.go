// Package mock drives the event surface with generated study activity so
// the pipeline can be exercised end to end without a UI.
package mock

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/skillsprint/backend/internal/progression"
)

var skillCategories = []string{
	"go", "sql", "algorithms", "system-design", "linux", "networking",
}

const demoUser = "demo"

type Generator struct {
	tracker  *progression.Tracker
	interval time.Duration
}

func NewGenerator(tracker *progression.Tracker) *Generator {
	return &Generator{tracker: tracker, interval: 2 * time.Second}
}

// Start emits a random progression event on every tick until ctx is
// cancelled. Runs in its own goroutine.
func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.emit(ctx)
		}
	}
}

func (g *Generator) emit(ctx context.Context) {
	var (
		unlocks []progression.Unlock
		err     error
		kind    string
	)

	switch roll := rand.Intn(100); {
	case roll < 70:
		kind = "task"
		ev := progression.TaskEvent{
			Hour:          rand.Intn(24),
			SkillCategory: skillCategories[rand.Intn(len(skillCategories))],
			Practice:      rand.Intn(4) == 0,
		}
		unlocks, err = g.tracker.OnTaskCompleted(ctx, demoUser, ev)
	case roll < 85:
		kind = "week"
		unlocks, err = g.tracker.OnWeekCompleted(ctx, demoUser)
	case roll < 95:
		kind = "plan"
		unlocks, err = g.tracker.OnPlanCompleted(ctx, demoUser)
	default:
		kind = "perfect week"
		unlocks, err = g.tracker.OnPerfectWeek(ctx, demoUser)
	}

	if err != nil {
		log.Printf("mock %s event failed: %v", kind, err)
		return
	}
	for _, u := range unlocks {
		log.Printf("mock: %s unlocked %s (%s)", demoUser, u.Name, u.Kind)
	}
}
