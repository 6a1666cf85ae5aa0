// Package store persists interview conversations to Postgres. It implements
// the live session's Recorder interface; the gateway runs without it when no
// DATABASE_URL is configured.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/session"
)

type Store struct {
	db *pgxpool.Pool
}

var _ session.Recorder = (*Store)(nil)

// Open connects to Postgres, verifies the connection, and applies any pending
// migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrate(ctx, databaseURL); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) SaveUtterance(ctx context.Context, sessionID, role, text string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO utterances (session_id, role, text)
		VALUES ($1, $2, $3)
	`, sessionID, role, text)
	return err
}

func (s *Store) SaveInterviewStatus(ctx context.Context, sessionID string, questionIndex, totalQuestions int, status string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO interview_sessions (session_id, question_index, total_questions, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE SET
			question_index = EXCLUDED.question_index,
			total_questions = EXCLUDED.total_questions,
			status = EXCLUDED.status,
			updated_at = NOW()
	`, sessionID, questionIndex, totalQuestions, status)
	return err
}

// DeductCredits appends one usage row per ended session. Billing itself is
// out of scope; downstream consumers aggregate this ledger.
func (s *Store) DeductCredits(ctx context.Context, sessionID string, elapsed time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO credit_usage (session_id, elapsed_ms)
		VALUES ($1, $2)
	`, sessionID, elapsed.Milliseconds())
	return err
}

// Utterance is one persisted conversation turn.
type Utterance struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ListUtterances returns a session's transcript in insertion order.
func (s *Store) ListUtterances(ctx context.Context, sessionID string, limit int) ([]Utterance, error) {
	rows, err := s.db.Query(ctx, `
		SELECT session_id, role, text, created_at
		FROM utterances
		WHERE session_id = $1
		ORDER BY id ASC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Utterance
	for rows.Next() {
		var u Utterance
		if err := rows.Scan(&u.SessionID, &u.Role, &u.Text, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
