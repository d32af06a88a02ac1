package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetgraph/pkg/models"
)

// NoteStore persists the per-meeting analysis note. The meeting_id unique
// constraint guarantees at most one note per meeting; re-analysis goes
// through an upsert.
type NoteStore struct {
	pool *pgxpool.Pool
}

func NewNoteStore(pool *pgxpool.Pool) *NoteStore {
	return &NoteStore{pool: pool}
}

// Upsert inserts or replaces the meeting's note.
func (s *NoteStore) Upsert(ctx context.Context, note *models.MeetingNote) error {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if note.Decisions == nil {
		note.Decisions = []string{}
	}
	if note.OpenQuestions == nil {
		note.OpenQuestions = []string{}
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO meeting_notes (id, meeting_id, summary, decisions, open_questions, raw, embedding, model_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (meeting_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			decisions = EXCLUDED.decisions,
			open_questions = EXCLUDED.open_questions,
			raw = EXCLUDED.raw,
			embedding = EXCLUDED.embedding,
			model_version = EXCLUDED.model_version,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		note.ID, note.MeetingID, note.Summary, note.Decisions, note.OpenQuestions,
		note.Raw, floatsToDoubles(note.Embedding), note.ModelVersion,
	).Scan(&note.ID, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert note for meeting %s: %w", note.MeetingID, err)
	}
	return nil
}

// GetByMeeting fetches the note for a meeting, or ErrNotFound.
func (s *NoteStore) GetByMeeting(ctx context.Context, meetingID string) (*models.MeetingNote, error) {
	var (
		note      models.MeetingNote
		embedding []float64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, meeting_id, summary, decisions, open_questions, raw, embedding, model_version, created_at, updated_at
		FROM meeting_notes WHERE meeting_id = $1`, meetingID,
	).Scan(&note.ID, &note.MeetingID, &note.Summary, &note.Decisions, &note.OpenQuestions,
		&note.Raw, &embedding, &note.ModelVersion, &note.CreatedAt, &note.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch note for meeting %s: %w", meetingID, err)
	}
	note.Embedding = doublesToFloats(embedding)
	return &note, nil
}

// Embeddings are stored as DOUBLE PRECISION[]; the model layer carries
// []float32 to match what the embedder returns.

func floatsToDoubles(v []float32) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func doublesToFloats(v []float64) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
