package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/skillsprint/backend/internal/progression"
)

// stateRecord is the opaque per-learner gamification document: the state
// is stored as a single JSON blob keyed by user id, mirroring the
// get/upsert key-value-record contract of the hosted backend.
type stateRecord struct {
	UserID    string `gorm:"primaryKey;size:64"`
	Data      []byte
	UpdatedAt time.Time
}

type examRecord struct {
	UserID   string `gorm:"primaryKey;size:64"`
	PlanID   string `gorm:"primaryKey;size:64"`
	Score    int
	MaxScore int
	Passed   bool
	TakenAt  time.Time
}

type diplomaRecord struct {
	UserID   string `gorm:"primaryKey;size:64"`
	PlanID   string `gorm:"primaryKey;size:64"`
	Title    string
	IssuedAt time.Time
}

// DBStore persists learner records in a relational database through GORM.
type DBStore struct {
	db *gorm.DB
}

// OpenDB opens (and migrates) a SQLite-backed DBStore at path. Use
// ":memory:" for an ephemeral store.
func OpenDB(path string) (*DBStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.AutoMigrate(&stateRecord{}, &examRecord{}, &diplomaRecord{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &DBStore{db: db}, nil
}

// Load reads a learner's state. A missing row maps to ErrNotFound.
func (d *DBStore) Load(ctx context.Context, userID string) (*progression.State, error) {
	var rec stateRecord
	err := d.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, progression.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading record: %w", err)
	}
	var state progression.State
	if err := json.Unmarshal(rec.Data, &state); err != nil {
		return nil, fmt.Errorf("parsing record: %w", err)
	}
	return &state, nil
}

// Save upserts a learner's state as one opaque JSON record.
func (d *DBStore) Save(ctx context.Context, userID string, s *progression.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	rec := stateRecord{UserID: userID, Data: data, UpdatedAt: time.Now().UTC()}
	err = d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("saving record: %w", err)
	}
	return nil
}

// SaveExam upserts an exam result keyed by (user, plan).
func (d *DBStore) SaveExam(ctx context.Context, userID string, rec progression.ExamRecord) error {
	row := examRecord{
		UserID:   userID,
		PlanID:   rec.PlanID,
		Score:    rec.Score,
		MaxScore: rec.MaxScore,
		Passed:   rec.Passed,
		TakenAt:  rec.TakenAt,
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "plan_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving exam: %w", err)
	}
	return nil
}

// SaveDiploma upserts an issued diploma keyed by (user, plan).
func (d *DBStore) SaveDiploma(ctx context.Context, userID string, rec progression.DiplomaRecord) error {
	row := diplomaRecord{
		UserID:   userID,
		PlanID:   rec.PlanID,
		Title:    rec.Title,
		IssuedAt: rec.IssuedAt,
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "plan_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving diploma: %w", err)
	}
	return nil
}

// Exams returns the learner's exam records ordered by plan id.
func (d *DBStore) Exams(ctx context.Context, userID string) ([]progression.ExamRecord, error) {
	var rows []examRecord
	err := d.db.WithContext(ctx).Where("user_id = ?", userID).Order("plan_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing exams: %w", err)
	}
	out := make([]progression.ExamRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, progression.ExamRecord{
			PlanID:   r.PlanID,
			Score:    r.Score,
			MaxScore: r.MaxScore,
			Passed:   r.Passed,
			TakenAt:  r.TakenAt,
		})
	}
	return out, nil
}

// Diplomas returns the learner's diploma records ordered by plan id.
func (d *DBStore) Diplomas(ctx context.Context, userID string) ([]progression.DiplomaRecord, error) {
	var rows []diplomaRecord
	err := d.db.WithContext(ctx).Where("user_id = ?", userID).Order("plan_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing diplomas: %w", err)
	}
	out := make([]progression.DiplomaRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, progression.DiplomaRecord{
			PlanID:   r.PlanID,
			Title:    r.Title,
			IssuedAt: r.IssuedAt,
		})
	}
	return out, nil
}
