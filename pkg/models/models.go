package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Meeting pipeline entities

// MeetingStatus tracks a meeting's position in the processing pipeline.
type MeetingStatus string

const (
	StatusRecording  MeetingStatus = "recording"
	StatusProcessing MeetingStatus = "processing"
	StatusAnalyzing  MeetingStatus = "analyzing"
	StatusLinking    MeetingStatus = "linking"
	StatusDone       MeetingStatus = "done"
	StatusFailed     MeetingStatus = "failed"
)

// statusTransitions is the single authoritative transition table for the
// pipeline state machine. Forward transitions are monotonic; "failed" is
// terminal for automatic progression but may re-enter the stage that set it
// when the user retries.
var statusTransitions = map[MeetingStatus][]MeetingStatus{
	StatusRecording:  {StatusProcessing},
	StatusProcessing: {StatusAnalyzing, StatusFailed},
	StatusAnalyzing:  {StatusLinking, StatusFailed},
	StatusLinking:    {StatusDone},
	StatusFailed:     {StatusProcessing, StatusAnalyzing},
	StatusDone:       {},
}

// CanTransition reports whether moving from s to target is a legal pipeline
// transition. Invalid moves (e.g. done -> processing) are rejected here rather
// than by convention at the call sites.
func (s MeetingStatus) CanTransition(target MeetingStatus) bool {
	for _, next := range statusTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends automatic pipeline progression.
func (s MeetingStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Valid reports whether the string is a known pipeline status.
func (s MeetingStatus) Valid() bool {
	switch s {
	case StatusRecording, StatusProcessing, StatusAnalyzing, StatusLinking, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Meeting represents one recorded meeting and its pipeline state.
type Meeting struct {
	ID        string        `json:"id" db:"id"`
	UserID    string        `json:"user_id" db:"user_id"`
	OrgID     *string       `json:"org_id,omitempty" db:"org_id"`
	Title     string        `json:"title" db:"title"`
	Language  string        `json:"language" db:"language"`
	Status    MeetingStatus `json:"status" db:"status"`
	AudioRef  string        `json:"audio_ref,omitempty" db:"audio_ref"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// TranscriptSegment is one parsed line of a meeting transcript. Position is
// the insertion-order key; segments are semantically time-ordered even though
// per-segment timing is not computed.
type TranscriptSegment struct {
	ID        string    `json:"id" db:"id"`
	MeetingID string    `json:"meeting_id" db:"meeting_id"`
	Position  int       `json:"position" db:"position"`
	Speaker   *string   `json:"speaker,omitempty" db:"speaker"`
	Text      string    `json:"text" db:"text"`
	Language  string    `json:"language" db:"language"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MeetingNote is the structured analysis output; at most one per meeting.
type MeetingNote struct {
	ID            string          `json:"id" db:"id"`
	MeetingID     string          `json:"meeting_id" db:"meeting_id"`
	Summary       string          `json:"summary" db:"summary"`
	Decisions     []string        `json:"decisions" db:"decisions"`
	OpenQuestions []string        `json:"open_questions" db:"open_questions"`
	Raw           json.RawMessage `json:"raw,omitempty" db:"raw"`
	Embedding     []float32       `json:"-" db:"embedding"`
	ModelVersion  string          `json:"model_version" db:"model_version"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// ActionItemPriority is one of high, medium, low.
type ActionItemPriority string

const (
	PriorityHigh   ActionItemPriority = "high"
	PriorityMedium ActionItemPriority = "medium"
	PriorityLow    ActionItemPriority = "low"
)

// NormalizePriority maps any provider-supplied priority string onto the known
// set, defaulting to medium for anything unrecognized.
func NormalizePriority(raw string) ActionItemPriority {
	switch ActionItemPriority(strings.ToLower(strings.TrimSpace(raw))) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// ActionItemStatus is the user-facing lifecycle of an action item.
type ActionItemStatus string

const (
	ActionOpen      ActionItemStatus = "open"
	ActionDone      ActionItemStatus = "done"
	ActionCancelled ActionItemStatus = "cancelled"
)

// ValidActionStatus reports whether s is a known action item status.
func ValidActionStatus(s ActionItemStatus) bool {
	return s == ActionOpen || s == ActionDone || s == ActionCancelled
}

// ActionItem is a task extracted from the meeting by the analysis stage.
type ActionItem struct {
	ID        string             `json:"id" db:"id"`
	MeetingID string             `json:"meeting_id" db:"meeting_id"`
	Task      string             `json:"task" db:"task"`
	Owner     *string            `json:"owner,omitempty" db:"owner"`
	Priority  ActionItemPriority `json:"priority" db:"priority"`
	Deadline  *string            `json:"deadline,omitempty" db:"deadline"`
	Status    ActionItemStatus   `json:"status" db:"status"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
}

// NodeType classifies a knowledge graph node by its source.
type NodeType string

const (
	NodeMeeting  NodeType = "meeting"
	NodeNote     NodeType = "note"
	NodeDecision NodeType = "decision"
	NodeAction   NodeType = "action"
)

// GraphNode is one unit of knowledge-graph content derived from a meeting.
// Nodes are fully replaced (delete-then-recreate) on every linking run; they
// are never incrementally patched.
type GraphNode struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Type      NodeType  `json:"type" db:"node_type"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	Embedding []float32 `json:"-" db:"embedding"`
	MeetingID *string   `json:"meeting_id,omitempty" db:"meeting_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ScoredNode pairs a graph node with its cosine similarity to a query
// vector, as returned by nearest-neighbor search.
type ScoredNode struct {
	Node       GraphNode `json:"node"`
	Similarity float64   `json:"similarity"`
}

// EdgeRelation labels the semantic relationship between two nodes.
type EdgeRelation string

const (
	RelationContinues   EdgeRelation = "continues"
	RelationReferences  EdgeRelation = "references"
	RelationContradicts EdgeRelation = "contradicts"
	RelationResolves    EdgeRelation = "resolves"
)

// GraphEdge links two nodes. Semantically undirected; stored as from/to.
// Strength is the similarity score in [0,1], rounded to two decimals.
type GraphEdge struct {
	ID        string       `json:"id" db:"id"`
	FromID    string       `json:"from_id" db:"from_id"`
	ToID      string       `json:"to_id" db:"to_id"`
	Relation  EdgeRelation `json:"relation" db:"relation"`
	Strength  float64      `json:"strength" db:"strength"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
