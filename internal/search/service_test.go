package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetgraph/internal/pipeline"
	"github.com/meetgraph/internal/store"
	"github.com/meetgraph/pkg/models"
)

type fakeGraph struct {
	nodes     []models.GraphNode
	lastLimit int
	err       error
}

func (f *fakeGraph) DeleteForMeeting(ctx context.Context, meetingID string) (int, error) {
	return 0, nil
}

func (f *fakeGraph) InsertNodes(ctx context.Context, nodes []models.GraphNode) error { return nil }

func (f *fakeGraph) InsertEdges(ctx context.Context, edges []models.GraphEdge) error { return nil }

func (f *fakeGraph) NearestNeighbors(ctx context.Context, userID string, query []float32, limit int, threshold float64) ([]models.ScoredNode, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastLimit = limit
	var scoped []models.GraphNode
	for _, n := range f.nodes {
		if n.UserID == userID {
			scoped = append(scoped, n)
		}
	}
	ranked := store.RankBySimilarity(scoped, query, threshold)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

type fakeLookup struct {
	refs map[string]store.MeetingRef
}

func (f *fakeLookup) TitlesByID(ctx context.Context, ids []string) (map[string]store.MeetingRef, error) {
	out := make(map[string]store.MeetingRef)
	for _, id := range ids {
		if ref, ok := f.refs[id]; ok {
			out[id] = ref
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func TestQuery(t *testing.T) {
	meetingID := "m1"
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	graph := &fakeGraph{nodes: []models.GraphNode{
		{ID: "n1", UserID: "alice", Type: models.NodeDecision, Title: "Ship v2", Content: "Ship v2 next sprint", Embedding: []float32{1, 0}, MeetingID: &meetingID},
		{ID: "n2", UserID: "alice", Type: models.NodeNote, Title: "Orphan", Content: "No meeting", Embedding: []float32{0.9, 0.1}},
		{ID: "n3", UserID: "bob", Type: models.NodeNote, Title: "Other user", Content: "Hidden", Embedding: []float32{1, 0}},
	}}
	lookup := &fakeLookup{refs: map[string]store.MeetingRef{
		meetingID: {Title: "Sprint planning", CreatedAt: created},
	}}
	svc := NewService(graph, lookup, &fakeEmbedder{vec: []float32{1, 0}}, zerolog.Nop())

	hits, err := svc.Query(context.Background(), "alice", "shipping plans", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits for alice, got %d", len(hits))
	}
	if hits[0].NodeID != "n1" {
		t.Errorf("expected the exact match first, got %s", hits[0].NodeID)
	}
	if hits[0].MeetingTitle != "Sprint planning" {
		t.Errorf("meeting title not enriched: %q", hits[0].MeetingTitle)
	}
	if hits[0].MeetingDate == nil || !hits[0].MeetingDate.Equal(created) {
		t.Errorf("meeting date not enriched: %v", hits[0].MeetingDate)
	}
	if hits[1].MeetingTitle != "" || hits[1].MeetingDate != nil {
		t.Errorf("orphan node should have no meeting identity: %+v", hits[1])
	}
}

func TestQueryValidation(t *testing.T) {
	svc := NewService(&fakeGraph{}, &fakeLookup{}, &fakeEmbedder{vec: []float32{1}}, zerolog.Nop())

	if _, err := svc.Query(context.Background(), "alice", "   ", 10); err == nil {
		t.Error("expected an error for a blank query")
	}
}

func TestQueryLimitClamped(t *testing.T) {
	graph := &fakeGraph{}
	svc := NewService(graph, &fakeLookup{}, &fakeEmbedder{vec: []float32{1}}, zerolog.Nop())

	if _, err := svc.Query(context.Background(), "alice", "anything", 0); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if graph.lastLimit != defaultLimit {
		t.Errorf("zero limit should fall back to %d, got %d", defaultLimit, graph.lastLimit)
	}

	if _, err := svc.Query(context.Background(), "alice", "anything", 500); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if graph.lastLimit != defaultLimit {
		t.Errorf("oversized limit should fall back to %d, got %d", defaultLimit, graph.lastLimit)
	}
}

func TestQueryEmbedFailure(t *testing.T) {
	svc := NewService(&fakeGraph{}, &fakeLookup{}, &fakeEmbedder{err: errors.New("quota exceeded")}, zerolog.Nop())

	_, err := svc.Query(context.Background(), "alice", "anything", 10)
	if !errors.Is(err, pipeline.ErrUpstream) {
		t.Errorf("expected an upstream error, got %v", err)
	}
}
