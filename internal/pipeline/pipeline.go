// Package pipeline implements the meeting processing stages: transcription,
// analysis, and graph linking. Each stage is independently invocable, drives
// the meeting status machine through compare-and-set transitions, and records
// an ordered diagnostic trace of its checkpoints.
package pipeline

import (
	"context"
	"errors"

	"github.com/meetgraph/internal/store"
	"github.com/meetgraph/pkg/models"
)

// Stage errors, matched with errors.Is at the API boundary.
var (
	// ErrNotFound aliases the store sentinel so callers match one value.
	ErrNotFound = store.ErrNotFound

	// ErrInvalidState means required precedent data is missing, e.g. no
	// audio attached or no transcript rows. Re-running the same stage will
	// not help until the upstream gap is filled.
	ErrInvalidState = errors.New("invalid state")

	// ErrUpstream means the model provider returned a failure or no usable
	// content. Retryable by invoking the stage again.
	ErrUpstream = errors.New("upstream failure")
)

// MeetingStore is the slice of the meeting repository the stages need.
type MeetingStore interface {
	Get(ctx context.Context, id string) (*models.Meeting, error)
	TransitionStatus(ctx context.Context, id string, from []models.MeetingStatus, target models.MeetingStatus) (models.MeetingStatus, error)
}

// TranscriptStore persists parsed segments.
type TranscriptStore interface {
	ReplaceForMeeting(ctx context.Context, meetingID string, segments []models.TranscriptSegment) error
	ListByMeeting(ctx context.Context, meetingID string) ([]models.TranscriptSegment, error)
}

// NoteStore persists the analysis note.
type NoteStore interface {
	Upsert(ctx context.Context, note *models.MeetingNote) error
	GetByMeeting(ctx context.Context, meetingID string) (*models.MeetingNote, error)
}

// ActionStore persists extracted action items.
type ActionStore interface {
	ReplaceForMeeting(ctx context.Context, meetingID string, items []models.ActionItem) error
	ListByMeeting(ctx context.Context, meetingID string) ([]models.ActionItem, error)
}

// GraphStore persists knowledge graph nodes and edges.
type GraphStore interface {
	DeleteForMeeting(ctx context.Context, meetingID string) (int, error)
	InsertNodes(ctx context.Context, nodes []models.GraphNode) error
	InsertEdges(ctx context.Context, edges []models.GraphEdge) error
	NearestNeighbors(ctx context.Context, userID string, query []float32, limit int, threshold float64) ([]models.ScoredNode, error)
}

// AudioStore fetches stored meeting audio by ref.
type AudioStore interface {
	Load(ref string) ([]byte, error)
}
