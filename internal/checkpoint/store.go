package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a checkpoint id does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Store handles checkpoint persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a checkpoint store using the given database.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	// "order" is an SQL keyword, stored as ord.
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			lesson_id TEXT NOT NULL,
			ord INTEGER NOT NULL,
			objective TEXT NOT NULL,
			complete INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			UNIQUE (lesson_id, ord)
		);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_lesson
			ON checkpoints(lesson_id, ord);
	`)
	return err
}

// CreateAll inserts one checkpoint per objective, ordered as given.
// Used once per lesson at plan time.
func (s *Store) CreateAll(lessonID uuid.UUID, objectives []string) ([]*Checkpoint, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result := make([]*Checkpoint, 0, len(objectives))
	for i, objective := range objectives {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate id: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO checkpoints (id, lesson_id, ord, objective, complete, created_at)
			VALUES (?, ?, ?, ?, 0, ?)
		`, id.String(), lessonID.String(), i, objective, now.Format(time.RFC3339))
		if err != nil {
			return nil, fmt.Errorf("insert checkpoint %d: %w", i, err)
		}

		result = append(result, &Checkpoint{
			ID:        id,
			LessonID:  lessonID,
			Order:     i,
			Objective: objective,
			CreatedAt: now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

// Current returns the lesson's current objective, the lowest-ordered
// incomplete checkpoint. Returns nil (no error) when every checkpoint
// is complete or the lesson has none.
func (s *Store) Current(lessonID uuid.UUID) (*Checkpoint, error) {
	row := s.db.QueryRow(`
		SELECT id, lesson_id, ord, objective, complete, created_at
		FROM checkpoints
		WHERE lesson_id = ? AND complete = 0
		ORDER BY ord ASC
		LIMIT 1
	`, lessonID.String())

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

// Get retrieves a checkpoint by ID.
func (s *Store) Get(id uuid.UUID) (*Checkpoint, error) {
	row := s.db.QueryRow(`
		SELECT id, lesson_id, ord, objective, complete, created_at
		FROM checkpoints WHERE id = ?
	`, id.String())

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cp, err
}

// ListByLesson returns all checkpoints for a lesson in plan order.
func (s *Store) ListByLesson(lessonID uuid.UUID) ([]*Checkpoint, error) {
	rows, err := s.db.Query(`
		SELECT id, lesson_id, ord, objective, complete, created_at
		FROM checkpoints
		WHERE lesson_id = ?
		ORDER BY ord ASC
	`, lessonID.String())
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var result []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, cp)
	}
	return result, rows.Err()
}

// Complete marks a checkpoint done. Completion is monotonic: completing
// an already-complete checkpoint is a no-op success, reported via
// Completed.AlreadyComplete.
func (s *Store) Complete(id uuid.UUID) (*Completed, error) {
	cp, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	ack := &Completed{CheckpointID: cp.ID, LessonID: cp.LessonID}
	if cp.Complete {
		ack.AlreadyComplete = true
		return ack, nil
	}

	_, err = s.db.Exec(`UPDATE checkpoints SET complete = 1 WHERE id = ?`, id.String())
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	return ack, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scannable) (*Checkpoint, error) {
	var (
		idStr     string
		lessonStr string
		ord       int
		objective string
		complete  int
		createdAt string
	)
	if err := row.Scan(&idStr, &lessonStr, &ord, &objective, &complete, &createdAt); err != nil {
		return nil, err
	}

	cp := &Checkpoint{
		Order:     ord,
		Objective: objective,
		Complete:  complete != 0,
	}

	var err error
	cp.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	cp.LessonID, err = uuid.Parse(lessonStr)
	if err != nil {
		return nil, fmt.Errorf("parse lesson id: %w", err)
	}
	cp.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return cp, nil
}
