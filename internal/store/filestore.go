// Package store provides the persistence gateway implementations the
// progression tracker saves through: a per-user JSON file store for local
// and demo use, and a GORM-backed database store.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skillsprint/backend/internal/progression"
)

const appDirName = "skillsprint"

// document is the on-disk shape of one learner's record: the opaque
// progression state plus the append-only exam and diploma records.
type document struct {
	State    *progression.State          `json:"state"`
	Exams    []progression.ExamRecord    `json:"exams,omitempty"`
	Diplomas []progression.DiplomaRecord `json:"diplomas,omitempty"`
}

// FileStore keeps one JSON document per learner under a state directory.
// Writes use an atomic temp-file-then-rename so a crash never leaves a
// truncated record behind.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// (with parents) on the first write. Pass an empty string to use the
// default XDG state path.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = defaultStateDir()
	}
	return &FileStore{dir: dir}
}

// Path returns the full path of the record file for userID.
func (fs *FileStore) Path(userID string) string {
	return filepath.Join(fs.dir, sanitizeUserID(userID)+".json")
}

// Load reads a learner's state. A missing file maps to ErrNotFound.
func (fs *FileStore) Load(_ context.Context, userID string) (*progression.State, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	doc, err := fs.read(userID)
	if err != nil {
		return nil, err
	}
	if doc.State == nil {
		return nil, progression.ErrNotFound
	}
	return doc.State, nil
}

// Save upserts a learner's state, preserving any exam/diploma records
// already in the document.
func (fs *FileStore) Save(_ context.Context, userID string, s *progression.State) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	doc, err := fs.read(userID)
	if err != nil && err != progression.ErrNotFound {
		return err
	}
	doc.State = s
	return fs.write(userID, doc)
}

// SaveExam upserts an exam result keyed by plan id.
func (fs *FileStore) SaveExam(_ context.Context, userID string, rec progression.ExamRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	doc, err := fs.read(userID)
	if err != nil && err != progression.ErrNotFound {
		return err
	}
	replaced := false
	for i, e := range doc.Exams {
		if e.PlanID == rec.PlanID {
			doc.Exams[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Exams = append(doc.Exams, rec)
	}
	return fs.write(userID, doc)
}

// SaveDiploma upserts an issued diploma keyed by plan id.
func (fs *FileStore) SaveDiploma(_ context.Context, userID string, rec progression.DiplomaRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	doc, err := fs.read(userID)
	if err != nil && err != progression.ErrNotFound {
		return err
	}
	replaced := false
	for i, d := range doc.Diplomas {
		if d.PlanID == rec.PlanID {
			doc.Diplomas[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Diplomas = append(doc.Diplomas, rec)
	}
	return fs.write(userID, doc)
}

// Exams returns the learner's exam records.
func (fs *FileStore) Exams(_ context.Context, userID string) ([]progression.ExamRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	doc, err := fs.read(userID)
	if err != nil && err != progression.ErrNotFound {
		return nil, err
	}
	return doc.Exams, nil
}

// Diplomas returns the learner's diploma records.
func (fs *FileStore) Diplomas(_ context.Context, userID string) ([]progression.DiplomaRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	doc, err := fs.read(userID)
	if err != nil && err != progression.ErrNotFound {
		return nil, err
	}
	return doc.Diplomas, nil
}

func (fs *FileStore) read(userID string) (document, error) {
	data, err := os.ReadFile(fs.Path(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, progression.ErrNotFound
		}
		return document{}, fmt.Errorf("reading record: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parsing record: %w", err)
	}
	return doc, nil
}

func (fs *FileStore) write(userID string, doc document) error {
	if err := os.MkdirAll(fs.dir, 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(fs.dir, ".record-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, fs.Path(userID)); err != nil {
		return fmt.Errorf("renaming record file: %w", err)
	}
	committed = true

	return nil
}

// sanitizeUserID keeps user-supplied ids from escaping the state dir.
func sanitizeUserID(userID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, userID)
}

// defaultStateDir returns ~/.local/state/skillsprint, respecting
// XDG_STATE_HOME if set.
func defaultStateDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
