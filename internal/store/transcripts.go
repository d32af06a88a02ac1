package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetgraph/pkg/models"
)

// TranscriptStore persists parsed transcript segments.
type TranscriptStore struct {
	pool *pgxpool.Pool
}

func NewTranscriptStore(pool *pgxpool.Pool) *TranscriptStore {
	return &TranscriptStore{pool: pool}
}

// ReplaceForMeeting deletes any existing segments for the meeting and inserts
// the new set in one transaction, so a transcription re-run never leaves a
// mix of old and new lines.
func (s *TranscriptStore) ReplaceForMeeting(ctx context.Context, meetingID string, segments []models.TranscriptSegment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transcript replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transcript_segments WHERE meeting_id = $1`, meetingID); err != nil {
		return fmt.Errorf("failed to clear old segments: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range segments {
		seg := &segments[i]
		if seg.ID == "" {
			seg.ID = uuid.New().String()
		}
		seg.MeetingID = meetingID
		seg.Position = i
		batch.Queue(`
			INSERT INTO transcript_segments (id, meeting_id, position, speaker, text, language)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			seg.ID, seg.MeetingID, seg.Position, seg.Speaker, seg.Text, seg.Language)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert segments: %w", err)
	}

	return tx.Commit(ctx)
}

// ListByMeeting returns a meeting's segments in position order.
func (s *TranscriptStore) ListByMeeting(ctx context.Context, meetingID string) ([]models.TranscriptSegment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, meeting_id, position, speaker, text, language, created_at
		FROM transcript_segments
		WHERE meeting_id = $1
		ORDER BY position`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	defer rows.Close()

	var segments []models.TranscriptSegment
	for rows.Next() {
		var seg models.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.MeetingID, &seg.Position, &seg.Speaker, &seg.Text, &seg.Language, &seg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan segment row: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}
