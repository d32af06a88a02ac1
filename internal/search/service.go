// Package search embeds free-text queries and runs them against the
// knowledge graph with the same similarity semantics the linking stage uses.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetgraph/internal/ai"
	"github.com/meetgraph/internal/pipeline"
	"github.com/meetgraph/internal/store"
	"github.com/meetgraph/pkg/models"
)

const defaultLimit = 10

// MeetingLookup resolves node meeting references to titles and dates.
type MeetingLookup interface {
	TitlesByID(ctx context.Context, ids []string) (map[string]store.MeetingRef, error)
}

// Service answers free-text queries over a user's knowledge graph.
type Service struct {
	graph    pipeline.GraphStore
	meetings MeetingLookup
	embedder ai.Embedder
	log      zerolog.Logger
}

func NewService(graph pipeline.GraphStore, meetings MeetingLookup, embedder ai.Embedder, log zerolog.Logger) *Service {
	return &Service{
		graph:    graph,
		meetings: meetings,
		embedder: embedder,
		log:      log.With().Str("component", "search").Logger(),
	}
}

// Hit is one search result: a graph node plus its source meeting identity.
type Hit struct {
	NodeID       string          `json:"node_id"`
	Type         models.NodeType `json:"type"`
	Title        string          `json:"title"`
	Content      string          `json:"content"`
	Similarity   float64         `json:"similarity"`
	MeetingID    *string         `json:"meeting_id,omitempty"`
	MeetingTitle string          `json:"meeting_title,omitempty"`
	MeetingDate  *time.Time      `json:"meeting_date,omitempty"`
}

// Query embeds the query text and returns the user's most similar nodes,
// enriched with their source meeting's title and date.
func (s *Service) Query(ctx context.Context, userID, query string, limit int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 || limit > 50 {
		limit = defaultLimit
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %v", pipeline.ErrUpstream, err)
	}

	scored, err := s.graph.NearestNeighbors(ctx, userID, vec, limit, pipeline.SimilarityThreshold)
	if err != nil {
		return nil, err
	}

	var meetingIDs []string
	for _, sn := range scored {
		if sn.Node.MeetingID != nil {
			meetingIDs = append(meetingIDs, *sn.Node.MeetingID)
		}
	}
	refs, err := s.meetings.TitlesByID(ctx, meetingIDs)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(scored))
	for _, sn := range scored {
		hit := Hit{
			NodeID:     sn.Node.ID,
			Type:       sn.Node.Type,
			Title:      sn.Node.Title,
			Content:    sn.Node.Content,
			Similarity: sn.Similarity,
			MeetingID:  sn.Node.MeetingID,
		}
		if sn.Node.MeetingID != nil {
			if ref, ok := refs[*sn.Node.MeetingID]; ok {
				hit.MeetingTitle = ref.Title
				created := ref.CreatedAt
				hit.MeetingDate = &created
			}
		}
		hits = append(hits, hit)
	}

	s.log.Debug().Str("user_id", userID).Int("hits", len(hits)).Msg("Search completed")
	return hits, nil
}
