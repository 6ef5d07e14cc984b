package progression

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Gateway when a learner has no saved record
// yet. The tracker treats it as "new user", not as a failure.
var ErrNotFound = errors.New("gamification record not found")

// ExamRecord is an append-only exam result keyed by study plan. It is
// persisted as-is and never evaluated by progression math.
type ExamRecord struct {
	PlanID   string    `json:"planId"`
	Score    int       `json:"score"`
	MaxScore int       `json:"maxScore"`
	Passed   bool      `json:"passed"`
	TakenAt  time.Time `json:"takenAt"`
}

// DiplomaRecord is an issued diploma keyed by study plan.
type DiplomaRecord struct {
	PlanID   string    `json:"planId"`
	Title    string    `json:"title"`
	IssuedAt time.Time `json:"issuedAt"`
}

// Gateway is the persistence contract the tracker talks to. Load returns
// ErrNotFound for a brand-new learner. Save upserts the opaque state
// record; its failures are recovered by the tracker, never surfaced to the
// caller of an event.
type Gateway interface {
	Load(ctx context.Context, userID string) (*State, error)
	Save(ctx context.Context, userID string, s *State) error

	SaveExam(ctx context.Context, userID string, rec ExamRecord) error
	SaveDiploma(ctx context.Context, userID string, rec DiplomaRecord) error
	Exams(ctx context.Context, userID string) ([]ExamRecord, error)
	Diplomas(ctx context.Context, userID string) ([]DiplomaRecord, error)
}
