// Package store holds the Postgres repositories for the meeting pipeline.
// Pipeline entities (meetings, transcripts, notes, actions) go through pgx;
// the knowledge graph store sits on database/sql with lib/pq for its array
// columns.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/meetgraph/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a status change is rejected, either
// because the transition table forbids it or because the row's status changed
// concurrently.
var ErrInvalidTransition = errors.New("invalid status transition")

// MeetingStore persists meetings and owns their status transitions.
type MeetingStore struct {
	pool *pgxpool.Pool
}

func NewMeetingStore(pool *pgxpool.Pool) *MeetingStore {
	return &MeetingStore{pool: pool}
}

// Create inserts a new meeting in the recording state.
func (s *MeetingStore) Create(ctx context.Context, userID string, orgID *string, title, language string) (*models.Meeting, error) {
	if language == "" {
		language = "en"
	}
	m := &models.Meeting{
		ID:       uuid.New().String(),
		UserID:   userID,
		OrgID:    orgID,
		Title:    title,
		Language: language,
		Status:   models.StatusRecording,
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO meetings (id, user_id, org_id, title, language, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		m.ID, m.UserID, m.OrgID, m.Title, m.Language, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert meeting: %w", err)
	}

	log.Info().Str("meeting_id", m.ID).Str("user_id", userID).Msg("Meeting created")
	return m, nil
}

// Get fetches a meeting by ID.
func (s *MeetingStore) Get(ctx context.Context, id string) (*models.Meeting, error) {
	var m models.Meeting
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, org_id, title, language, status, audio_ref, created_at, updated_at
		FROM meetings WHERE id = $1`, id,
	).Scan(&m.ID, &m.UserID, &m.OrgID, &m.Title, &m.Language, &m.Status, &m.AudioRef, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meeting %s: %w", id, err)
	}
	return &m, nil
}

// List returns a user's meetings, newest first.
func (s *MeetingStore) List(ctx context.Context, userID string, limit int) ([]models.Meeting, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, org_id, title, language, status, audio_ref, created_at, updated_at
		FROM meetings WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()

	var meetings []models.Meeting
	for rows.Next() {
		var m models.Meeting
		if err := rows.Scan(&m.ID, &m.UserID, &m.OrgID, &m.Title, &m.Language, &m.Status, &m.AudioRef, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan meeting row: %w", err)
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// SetAudioRef records where the meeting's audio lives.
func (s *MeetingStore) SetAudioRef(ctx context.Context, id, audioRef string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE meetings SET audio_ref = $2, updated_at = now() WHERE id = $1`,
		id, audioRef)
	if err != nil {
		return fmt.Errorf("failed to set audio ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionStatus moves a meeting from one of the allowed source states to
// target. The update is a compare-and-set on the status column, so a stage
// that lost a race observes ErrInvalidTransition instead of silently
// clobbering another stage's progress.
func (s *MeetingStore) TransitionStatus(ctx context.Context, id string, from []models.MeetingStatus, target models.MeetingStatus) (models.MeetingStatus, error) {
	valid := make([]string, 0, len(from))
	for _, f := range from {
		if f.CanTransition(target) {
			valid = append(valid, string(f))
		}
	}
	if len(valid) == 0 {
		return "", fmt.Errorf("%w: no legal path to %s", ErrInvalidTransition, target)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE meetings SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)`,
		id, target, valid)
	if err != nil {
		return "", fmt.Errorf("failed to transition meeting %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a concurrent status change.
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return "", getErr
		}
		return current.Status, fmt.Errorf("%w: meeting %s is %s, cannot move to %s",
			ErrInvalidTransition, id, current.Status, target)
	}

	log.Debug().Str("meeting_id", id).Str("status", string(target)).Msg("Meeting status updated")
	return target, nil
}

// Delete removes a meeting. Transcripts, notes and action items cascade;
// graph nodes survive with their meeting reference nulled.
func (s *MeetingStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete meeting %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	log.Info().Str("meeting_id", id).Msg("Meeting deleted")
	return nil
}

// Touch bumps updated_at without changing anything else. Used by stages that
// re-run without a status change.
func (s *MeetingStore) Touch(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE meetings SET updated_at = now() WHERE id = $1`, id)
	return err
}

// TitlesByID returns id -> (title, created_at) for the given meeting IDs.
// Used by search to enrich node hits.
func (s *MeetingStore) TitlesByID(ctx context.Context, ids []string) (map[string]MeetingRef, error) {
	if len(ids) == 0 {
		return map[string]MeetingRef{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, created_at FROM meetings WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meeting titles: %w", err)
	}
	defer rows.Close()

	refs := make(map[string]MeetingRef, len(ids))
	for rows.Next() {
		var (
			id  string
			ref MeetingRef
		)
		if err := rows.Scan(&id, &ref.Title, &ref.CreatedAt); err != nil {
			return nil, err
		}
		refs[id] = ref
	}
	return refs, rows.Err()
}

// MeetingRef is the minimal meeting identity attached to search hits.
type MeetingRef struct {
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
