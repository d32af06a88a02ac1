package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/meetgraph/internal/ai"
	"github.com/meetgraph/pkg/models"
)

const (
	// MaxRelated scales the soft global edge cap for one linking run:
	// MaxRelated * (candidate node count). The cap is global, not
	// per-node; a single node may carry more edges when its neighbors
	// warrant it.
	MaxRelated = 5

	// SimilarityThreshold is the minimum cosine similarity for two nodes
	// to be considered related at all.
	SimilarityThreshold = 0.65

	// ResolveThreshold is the similarity above which two decision nodes
	// are linked as resolves rather than references.
	ResolveThreshold = 0.85

	nodeTitleLimit        = 80
	embedContentLimit     = 4000
	transcriptWithSummary = 2000
	transcriptAloneLimit  = 3000
)

// LinkingStage rebuilds a meeting's knowledge graph nodes and connects them
// to semantically similar nodes across the user's history.
type LinkingStage struct {
	meetings    MeetingStore
	transcripts TranscriptStore
	notes       NoteStore
	actions     ActionStore
	graph       GraphStore
	embedder    ai.Embedder
	log         zerolog.Logger
}

func NewLinkingStage(meetings MeetingStore, transcripts TranscriptStore, notes NoteStore, actions ActionStore, graph GraphStore, embedder ai.Embedder, log zerolog.Logger) *LinkingStage {
	return &LinkingStage{
		meetings:    meetings,
		transcripts: transcripts,
		notes:       notes,
		actions:     actions,
		graph:       graph,
		embedder:    embedder,
		log:         log.With().Str("stage", "linking").Logger(),
	}
}

// LinkResult reports what a linking run produced.
type LinkResult struct {
	NodesDeleted int      `json:"nodes_deleted"`
	NodesCreated int      `json:"nodes_created"`
	EdgesCreated int      `json:"edges_created"`
	Steps        []string `json:"steps"`
}

// Run executes the stage for one meeting. Once the meeting has entered the
// linking state, it always advances to done, even when the run itself fails:
// graph enrichment is a value-add, never a reason to keep a meeting from its
// terminal state. The internal error is still returned so the caller's
// response can report it.
func (s *LinkingStage) Run(ctx context.Context, meetingID string) (*LinkResult, []string, error) {
	trace := &Trace{}

	trace.Add("Fetching meeting %s", meetingID)
	meeting, err := s.meetings.Get(ctx, meetingID)
	if err != nil {
		return nil, trace.Steps(), err
	}
	if meeting.Status != models.StatusLinking {
		if _, err := s.meetings.TransitionStatus(ctx, meetingID,
			[]models.MeetingStatus{models.StatusAnalyzing}, models.StatusLinking); err != nil {
			return nil, trace.Steps(), err
		}
	}
	trace.Add("Meeting is linking")

	result, runErr := s.run(ctx, meeting, trace)
	if runErr != nil {
		s.log.Error().Err(runErr).Str("meeting_id", meetingID).Msg("Linking failed, advancing to done anyway")
		trace.Add("Linking failed: %v", runErr)
	}

	if _, err := s.meetings.TransitionStatus(ctx, meetingID,
		[]models.MeetingStatus{models.StatusLinking}, models.StatusDone); err != nil {
		s.log.Warn().Err(err).Str("meeting_id", meetingID).Msg("Could not mark meeting done")
	} else {
		trace.Add("Meeting advanced to done")
	}

	if runErr != nil {
		return nil, trace.Steps(), runErr
	}
	result.Steps = trace.Steps()
	return result, trace.Steps(), nil
}

func (s *LinkingStage) run(ctx context.Context, meeting *models.Meeting, trace *Trace) (*LinkResult, error) {
	note, err := s.notes.GetByMeeting(ctx, meeting.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	actions, err := s.actions.ListByMeeting(ctx, meeting.ID)
	if err != nil {
		return nil, err
	}
	segments, err := s.transcripts.ListByMeeting(ctx, meeting.ID)
	if err != nil {
		return nil, err
	}

	deleted, err := s.graph.DeleteForMeeting(ctx, meeting.ID)
	if err != nil {
		return nil, err
	}
	trace.Add("Removed %d previous nodes", deleted)

	nodes := BuildNodes(meeting, note, actions, segments)
	trace.Add("Built %d candidate nodes", len(nodes))

	embedded := 0
	for i := range nodes {
		content := truncate(nodes[i].Content, embedContentLimit)
		vec, err := s.embedder.Embed(ctx, content)
		if err != nil {
			// A node without an embedding is stored anyway; it just
			// cannot participate in similarity search.
			s.log.Warn().Err(err).Str("node_title", nodes[i].Title).Msg("Could not embed node content")
			continue
		}
		nodes[i].Embedding = vec
		embedded++
	}
	trace.Add("Embedded %d of %d nodes", embedded, len(nodes))

	if err := s.graph.InsertNodes(ctx, nodes); err != nil {
		return nil, err
	}
	trace.Add("Stored %d nodes", len(nodes))

	edges, err := s.connect(ctx, meeting.UserID, nodes)
	if err != nil {
		return nil, err
	}
	if len(edges) > 0 {
		if err := s.graph.InsertEdges(ctx, edges); err != nil {
			return nil, err
		}
	}
	trace.Add("Created %d edges", len(edges))

	return &LinkResult{
		NodesDeleted: deleted,
		NodesCreated: len(nodes),
		EdgesCreated: len(edges),
	}, nil
}

// connect finds each embedded node's nearest neighbors and derives edges,
// deduplicating unordered pairs within the run and honoring the global cap.
func (s *LinkingStage) connect(ctx context.Context, userID string, nodes []models.GraphNode) ([]models.GraphEdge, error) {
	edgeCap := MaxRelated * len(nodes)
	seen := make(map[string]bool)
	var edges []models.GraphEdge

	for _, node := range nodes {
		if len(node.Embedding) == 0 {
			continue
		}
		if len(edges) >= edgeCap {
			break
		}

		neighbors, err := s.graph.NearestNeighbors(ctx, userID, node.Embedding, MaxRelated+5, SimilarityThreshold)
		if err != nil {
			return nil, err
		}

		for _, neighbor := range neighbors {
			if len(edges) >= edgeCap {
				break
			}
			if neighbor.Node.ID == node.ID {
				continue
			}
			key := pairKey(node.ID, neighbor.Node.ID)
			if seen[key] {
				continue
			}
			seen[key] = true

			edges = append(edges, models.GraphEdge{
				FromID:   node.ID,
				ToID:     neighbor.Node.ID,
				Relation: RelationFor(node.Type, neighbor.Node.Type, neighbor.Similarity),
				Strength: math.Round(neighbor.Similarity*100) / 100,
			})
		}
	}
	return edges, nil
}

// RelationFor derives the edge label from the endpoint types and similarity:
// meeting-to-meeting continues, decision-to-decision resolves above the
// resolve threshold, everything else references.
func RelationFor(a, b models.NodeType, similarity float64) models.EdgeRelation {
	switch {
	case a == models.NodeMeeting && b == models.NodeMeeting:
		return models.RelationContinues
	case a == models.NodeDecision && b == models.NodeDecision && similarity > ResolveThreshold:
		return models.RelationResolves
	default:
		return models.RelationReferences
	}
}

// pairKey builds an order-independent key for an edge's endpoints.
func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

// BuildNodes constructs the candidate node set for a meeting: one meeting
// node, a note node when a summary exists, one node per decision, and one
// per action item.
func BuildNodes(meeting *models.Meeting, note *models.MeetingNote, actions []models.ActionItem, segments []models.TranscriptSegment) []models.GraphNode {
	meetingID := meeting.ID
	transcript := TranscriptText(segments)

	var summary string
	if note != nil {
		summary = note.Summary
	}

	var meetingContent string
	if summary != "" {
		meetingContent = summary + "\n\n" + truncate(transcript, transcriptWithSummary)
	} else {
		meetingContent = truncate(transcript, transcriptAloneLimit)
	}

	nodes := []models.GraphNode{{
		UserID:    meeting.UserID,
		Type:      models.NodeMeeting,
		Title:     meeting.Title,
		Content:   meetingContent,
		MeetingID: &meetingID,
	}}

	if summary != "" {
		nodes = append(nodes, models.GraphNode{
			UserID:    meeting.UserID,
			Type:      models.NodeNote,
			Title:     "Summary: " + meeting.Title,
			Content:   summary,
			MeetingID: &meetingID,
		})
	}

	if note != nil {
		for _, decision := range note.Decisions {
			nodes = append(nodes, models.GraphNode{
				UserID:    meeting.UserID,
				Type:      models.NodeDecision,
				Title:     truncateTitle(decision),
				Content:   decision,
				MeetingID: &meetingID,
			})
		}
	}

	for _, action := range actions {
		owner := "unassigned"
		if action.Owner != nil && *action.Owner != "" {
			owner = *action.Owner
		}
		nodes = append(nodes, models.GraphNode{
			UserID:    meeting.UserID,
			Type:      models.NodeAction,
			Title:     truncateTitle(action.Task),
			Content:   fmt.Sprintf("%s (owner: %s, priority: %s)", action.Task, owner, action.Priority),
			MeetingID: &meetingID,
		})
	}

	return nodes
}

func truncateTitle(s string) string {
	if len(s) <= nodeTitleLimit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= nodeTitleLimit {
		return s
	}
	return string(runes[:nodeTitleLimit]) + "..."
}

// truncate cuts s to at most limit characters, never splitting a rune.
// Multibyte text sliced by byte offset would produce invalid UTF-8, which
// Postgres TEXT columns reject outright.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
