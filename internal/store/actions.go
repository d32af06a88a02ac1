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

// ActionStore persists extracted action items.
type ActionStore struct {
	pool *pgxpool.Pool
}

func NewActionStore(pool *pgxpool.Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// ReplaceForMeeting swaps the meeting's action items for the given set in one
// transaction. Re-analysis fully regenerates the list; items are not merged
// with earlier runs.
func (s *ActionStore) ReplaceForMeeting(ctx context.Context, meetingID string, items []models.ActionItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin action replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM action_items WHERE meeting_id = $1`, meetingID); err != nil {
		return fmt.Errorf("failed to clear old action items: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.MeetingID = meetingID
		if item.Status == "" {
			item.Status = models.ActionOpen
		}
		batch.Queue(`
			INSERT INTO action_items (id, meeting_id, task, owner, priority, deadline, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, item.MeetingID, item.Task, item.Owner, item.Priority, item.Deadline, item.Status)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert action items: %w", err)
	}

	return tx.Commit(ctx)
}

// ListByMeeting returns a meeting's action items in creation order.
func (s *ActionStore) ListByMeeting(ctx context.Context, meetingID string) ([]models.ActionItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, meeting_id, task, owner, priority, deadline, status, created_at
		FROM action_items
		WHERE meeting_id = $1
		ORDER BY created_at, id`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list action items: %w", err)
	}
	defer rows.Close()

	var items []models.ActionItem
	for rows.Next() {
		var item models.ActionItem
		if err := rows.Scan(&item.ID, &item.MeetingID, &item.Task, &item.Owner, &item.Priority, &item.Deadline, &item.Status, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action item row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateStatus changes a single action item's lifecycle status.
func (s *ActionStore) UpdateStatus(ctx context.Context, id string, status models.ActionItemStatus) (*models.ActionItem, error) {
	if !models.ValidActionStatus(status) {
		return nil, fmt.Errorf("unknown action status %q", status)
	}

	var item models.ActionItem
	err := s.pool.QueryRow(ctx, `
		UPDATE action_items SET status = $2 WHERE id = $1
		RETURNING id, meeting_id, task, owner, priority, deadline, status, created_at`,
		id, status,
	).Scan(&item.ID, &item.MeetingID, &item.Task, &item.Owner, &item.Priority, &item.Deadline, &item.Status, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update action item %s: %w", id, err)
	}
	return &item, nil
}
