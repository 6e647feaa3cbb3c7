package lesson

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lesson id does not exist.
var ErrNotFound = errors.New("lesson not found")

// Store handles lesson persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a lesson store using the given database.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS lessons (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			source TEXT,
			embedding TEXT,
			mode TEXT NOT NULL
		);
	`)
	return err
}

// Create saves a new lesson and returns it with ID populated.
func (s *Store) Create(source string, embedding []float32, mode Mode) (*Lesson, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	var embJSON []byte
	if embedding != nil {
		embJSON, err = json.Marshal(embedding)
		if err != nil {
			return nil, fmt.Errorf("marshal embedding: %w", err)
		}
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO lessons (id, created_at, source, embedding, mode)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), now.Format(time.RFC3339), source, nullableString(embJSON), string(mode))
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	return &Lesson{
		ID:        id,
		Source:    source,
		Embedding: embedding,
		Mode:      mode,
		CreatedAt: now,
	}, nil
}

// Get retrieves a lesson by ID.
func (s *Store) Get(id uuid.UUID) (*Lesson, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, source, embedding, mode
		FROM lessons WHERE id = ?
	`, id.String())

	var (
		idStr     string
		createdAt string
		source    sql.NullString
		embedding sql.NullString
		mode      string
	)
	if err := row.Scan(&idStr, &createdAt, &source, &embedding, &mode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	l := &Lesson{
		Source: source.String,
		Mode:   Mode(mode),
	}

	var err error
	l.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	l.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &l.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}

	return l, nil
}

// Source returns just the source text for a lesson, empty string when
// the lesson has no extracted notes.
func (s *Store) Source(id uuid.UUID) (string, error) {
	l, err := s.Get(id)
	if err != nil {
		return "", err
	}
	return l.Source, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
