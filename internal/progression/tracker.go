package progression

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const saveTimeout = 5 * time.Second

// UnlockCallback is invoked with the unlocks an event triggered, after the
// state mutation is complete. It runs outside the tracker lock.
type UnlockCallback func(userID string, unlocks []Unlock, xp XPSummary)

// Tracker owns the single current state per learner and is the event
// surface external features call into. Mutations happen synchronously in
// memory; persistence is debounced per learner and a failed save never
// fails the triggering event.
type Tracker struct {
	engine    *Engine
	gateway   Gateway
	saveDelay time.Duration
	now       func() time.Time

	mu    sync.Mutex
	users map[string]*userEntry

	onUnlock UnlockCallback
}

type userEntry struct {
	state *State
	saver *Saver
	dirty bool
}

// NewTracker creates a tracker over the given engine and gateway.
func NewTracker(engine *Engine, gateway Gateway, saveDelay time.Duration) *Tracker {
	return &Tracker{
		engine:    engine,
		gateway:   gateway,
		saveDelay: saveDelay,
		now:       time.Now,
		users:     make(map[string]*userEntry),
	}
}

// OnUnlock registers the unlock notification callback. Must be called
// before events are delivered.
func (t *Tracker) OnUnlock(cb UnlockCallback) {
	t.onUnlock = cb
}

// entry returns the in-memory record for userID, loading it through the
// gateway on first touch. A missing record materializes all-zero defaults.
// Caller must hold t.mu.
func (t *Tracker) entry(ctx context.Context, userID string) (*userEntry, error) {
	if e, ok := t.users[userID]; ok {
		return e, nil
	}

	state, err := t.gateway.Load(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		state = NewState(t.engine.Catalog())
	case err != nil:
		return nil, err
	default:
		state.Normalize(t.engine.Catalog())
	}

	e := &userEntry{state: state}
	e.saver = NewSaver(t.saveDelay, func() { t.saveUser(userID) })
	t.users[userID] = e
	return e, nil
}

// apply runs op against the learner's state, schedules persistence, and
// dispatches the unlock callback outside the lock.
func (t *Tracker) apply(ctx context.Context, userID string, op func(*State, time.Time) ([]Unlock, error)) ([]Unlock, error) {
	t.mu.Lock()
	e, err := t.entry(ctx, userID)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}

	unlocks, err := op(e.state, t.now())
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	e.dirty = true
	e.saver.Schedule()
	xp := xpSummary(e.state)
	t.mu.Unlock()

	if t.onUnlock != nil && len(unlocks) > 0 {
		t.onUnlock(userID, unlocks, xp)
	}
	return unlocks, nil
}

// OnTaskCompleted records a completed task for the learner.
func (t *Tracker) OnTaskCompleted(ctx context.Context, userID string, ev TaskEvent) ([]Unlock, error) {
	return t.apply(ctx, userID, func(s *State, now time.Time) ([]Unlock, error) {
		return t.engine.RecordTaskCompleted(s, ev, now)
	})
}

// OnWeekCompleted records a completed week of study.
func (t *Tracker) OnWeekCompleted(ctx context.Context, userID string) ([]Unlock, error) {
	return t.apply(ctx, userID, t.engine.RecordWeekCompleted)
}

// OnPlanCompleted records a finished study plan.
func (t *Tracker) OnPlanCompleted(ctx context.Context, userID string) ([]Unlock, error) {
	return t.apply(ctx, userID, t.engine.RecordPlanCompleted)
}

// OnPerfectWeek credits a perfect week.
func (t *Tracker) OnPerfectWeek(ctx context.Context, userID string) ([]Unlock, error) {
	return t.apply(ctx, userID, t.engine.RecordPerfectWeek)
}

// OnPerfectMonth credits a perfect month.
func (t *Tracker) OnPerfectMonth(ctx context.Context, userID string) ([]Unlock, error) {
	return t.apply(ctx, userID, t.engine.RecordPerfectMonth)
}

// OnExamUpdated persists an exam result keyed by plan id. Exam records are
// passthroughs: they never feed progression math.
func (t *Tracker) OnExamUpdated(ctx context.Context, userID string, rec ExamRecord) error {
	return t.gateway.SaveExam(ctx, userID, rec)
}

// OnDiplomaIssued persists an issued diploma keyed by plan id.
func (t *Tracker) OnDiplomaIssued(ctx context.Context, userID string, rec DiplomaRecord) error {
	return t.gateway.SaveDiploma(ctx, userID, rec)
}

// Progress returns the headline streak/XP/stats projections.
func (t *Tracker) Progress(ctx context.Context, userID string) (ProgressView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.entry(ctx, userID)
	if err != nil {
		return ProgressView{}, err
	}
	return ProgressView{
		Streak: streakSummary(e.state, Day(t.now())),
		XP:     xpSummary(e.state),
		Stats:  statsView(e.state),
	}, nil
}

// Certificates returns every catalog certificate annotated with progress.
func (t *Tracker) Certificates(ctx context.Context, userID string) ([]CertificateView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.entry(ctx, userID)
	if err != nil {
		return nil, err
	}
	return certificateViews(t.engine.Catalog(), e.state), nil
}

// Achievements returns every catalog achievement annotated with unlock
// status.
func (t *Tracker) Achievements(ctx context.Context, userID string) ([]AchievementView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.entry(ctx, userID)
	if err != nil {
		return nil, err
	}
	return achievementViews(t.engine.Catalog(), e.state), nil
}

// Activity returns the learner's activity log, most recent first.
func (t *Tracker) Activity(ctx context.Context, userID string) ([]ActivityEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.entry(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ActivityEntry, len(e.state.ActivityLog))
	copy(out, e.state.ActivityLog)
	return out, nil
}

// saveUser writes the learner's latest snapshot through the gateway. On
// failure the state stays dirty and another save is scheduled, so progress
// is retried rather than lost; the in-memory state is already correct
// either way.
func (t *Tracker) saveUser(userID string) {
	t.mu.Lock()
	e, ok := t.users[userID]
	if !ok || !e.dirty {
		t.mu.Unlock()
		return
	}
	snapshot := e.state.Clone()
	e.dirty = false
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := t.gateway.Save(ctx, userID, snapshot); err != nil {
		log.Printf("Failed to save progression for %s: %v (will retry)", userID, err)
		t.mu.Lock()
		e.dirty = true
		e.saver.Schedule()
		t.mu.Unlock()
	}
}

// FlushAll forces a save for every dirty learner. Called on shutdown.
func (t *Tracker) FlushAll() {
	t.mu.Lock()
	savers := make([]*Saver, 0, len(t.users))
	for _, e := range t.users {
		savers = append(savers, e.saver)
	}
	t.mu.Unlock()

	for _, sv := range savers {
		sv.Flush()
	}
}
