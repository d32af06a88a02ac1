package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meetgraph/internal/store"
	"github.com/meetgraph/pkg/models"
)

// In-memory doubles for the store and gateway interfaces, mirroring the
// Postgres repositories' semantics closely enough for stage-level tests.

type fakeMeetings struct {
	meetings map[string]*models.Meeting
}

func newFakeMeetings(ms ...*models.Meeting) *fakeMeetings {
	f := &fakeMeetings{meetings: map[string]*models.Meeting{}}
	for _, m := range ms {
		f.meetings[m.ID] = m
	}
	return f
}

func (f *fakeMeetings) Get(_ context.Context, id string) (*models.Meeting, error) {
	m, ok := f.meetings[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeMeetings) TransitionStatus(_ context.Context, id string, from []models.MeetingStatus, target models.MeetingStatus) (models.MeetingStatus, error) {
	m, ok := f.meetings[id]
	if !ok {
		return "", ErrNotFound
	}
	for _, fr := range from {
		if m.Status == fr && fr.CanTransition(target) {
			m.Status = target
			return target, nil
		}
	}
	return m.Status, fmt.Errorf("%w: meeting %s is %s, cannot move to %s",
		store.ErrInvalidTransition, id, m.Status, target)
}

type fakeTranscripts struct {
	segments map[string][]models.TranscriptSegment
	failNext error
}

func newFakeTranscripts() *fakeTranscripts {
	return &fakeTranscripts{segments: map[string][]models.TranscriptSegment{}}
}

func (f *fakeTranscripts) ReplaceForMeeting(_ context.Context, meetingID string, segments []models.TranscriptSegment) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	stored := make([]models.TranscriptSegment, len(segments))
	for i, seg := range segments {
		seg.ID = uuid.New().String()
		seg.MeetingID = meetingID
		seg.Position = i
		stored[i] = seg
	}
	f.segments[meetingID] = stored
	return nil
}

func (f *fakeTranscripts) ListByMeeting(_ context.Context, meetingID string) ([]models.TranscriptSegment, error) {
	return f.segments[meetingID], nil
}

type fakeNotes struct {
	notes map[string]*models.MeetingNote
}

func newFakeNotes() *fakeNotes {
	return &fakeNotes{notes: map[string]*models.MeetingNote{}}
}

func (f *fakeNotes) Upsert(_ context.Context, note *models.MeetingNote) error {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	copied := *note
	f.notes[note.MeetingID] = &copied
	return nil
}

func (f *fakeNotes) GetByMeeting(_ context.Context, meetingID string) (*models.MeetingNote, error) {
	note, ok := f.notes[meetingID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *note
	return &copied, nil
}

type fakeActions struct {
	items map[string][]models.ActionItem
}

func newFakeActions() *fakeActions {
	return &fakeActions{items: map[string][]models.ActionItem{}}
}

func (f *fakeActions) ReplaceForMeeting(_ context.Context, meetingID string, items []models.ActionItem) error {
	stored := make([]models.ActionItem, len(items))
	for i, item := range items {
		item.ID = uuid.New().String()
		item.MeetingID = meetingID
		stored[i] = item
	}
	f.items[meetingID] = stored
	return nil
}

func (f *fakeActions) ListByMeeting(_ context.Context, meetingID string) ([]models.ActionItem, error) {
	return f.items[meetingID], nil
}

type fakeGraph struct {
	nodes []models.GraphNode
	edges []models.GraphEdge

	// neighborsFor overrides similarity search; keyed by querying node ID.
	neighborsFor map[string][]models.ScoredNode
	failInsert   error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{neighborsFor: map[string][]models.ScoredNode{}}
}

func (f *fakeGraph) DeleteForMeeting(_ context.Context, meetingID string) (int, error) {
	kept := f.nodes[:0]
	removed := map[string]bool{}
	deleted := 0
	for _, n := range f.nodes {
		if n.MeetingID != nil && *n.MeetingID == meetingID {
			removed[n.ID] = true
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	f.nodes = kept

	keptEdges := f.edges[:0]
	for _, e := range f.edges {
		if removed[e.FromID] || removed[e.ToID] {
			continue
		}
		keptEdges = append(keptEdges, e)
	}
	f.edges = keptEdges
	return deleted, nil
}

func (f *fakeGraph) InsertNodes(_ context.Context, nodes []models.GraphNode) error {
	if f.failInsert != nil {
		return f.failInsert
	}
	for i := range nodes {
		if nodes[i].ID == "" {
			nodes[i].ID = uuid.New().String()
		}
		f.nodes = append(f.nodes, nodes[i])
	}
	return nil
}

func (f *fakeGraph) InsertEdges(_ context.Context, edges []models.GraphEdge) error {
	for i := range edges {
		if edges[i].ID == "" {
			edges[i].ID = uuid.New().String()
		}
		f.edges = append(f.edges, edges[i])
	}
	return nil
}

func (f *fakeGraph) NearestNeighbors(_ context.Context, userID string, query []float32, limit int, threshold float64) ([]models.ScoredNode, error) {
	scored := store.RankBySimilarity(f.userNodes(userID), query, threshold)
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (f *fakeGraph) userNodes(userID string) []models.GraphNode {
	var nodes []models.GraphNode
	for _, n := range f.nodes {
		if n.UserID == userID && len(n.Embedding) > 0 {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func (f *fakeGraph) nodesForMeeting(meetingID string) []models.GraphNode {
	var nodes []models.GraphNode
	for _, n := range f.nodes {
		if n.MeetingID != nil && *n.MeetingID == meetingID {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

type fakeAudio struct {
	files map[string][]byte
}

func newFakeAudio() *fakeAudio {
	return &fakeAudio{files: map[string][]byte{}}
}

func (f *fakeAudio) Load(ref string) ([]byte, error) {
	data, ok := f.files[ref]
	if !ok {
		return nil, fmt.Errorf("audio file %s is missing: %w", ref, ErrNotFound)
	}
	return data, nil
}

type fakeTranscriber struct {
	text string
	err  error

	gotAudio    []byte
	gotLanguage string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte, _, languageHint string) (string, error) {
	f.gotAudio = audio
	f.gotLanguage = languageHint
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) Generate(_ context.Context, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// fakeEmbedder derives a deterministic vector from text so tests can steer
// similarity by choosing contents.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		if vec, ok := f.vectors[text]; ok {
			return vec, nil
		}
	}
	return []float32{1, 0, 0}, nil
}
