package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/meetgraph/pkg/models"
)

// GraphStore persists knowledge graph nodes and edges. It runs on
// database/sql with lib/pq so the embedding columns can round-trip as
// Postgres arrays.
type GraphStore struct {
	db *sql.DB
}

func NewGraphStore(db *sql.DB) *GraphStore {
	return &GraphStore{db: db}
}

// DeleteForMeeting removes the meeting's nodes. Edges touching them cascade.
// Returns the number of nodes removed.
func (s *GraphStore) DeleteForMeeting(ctx context.Context, meetingID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM graph_nodes WHERE meeting_id = $1`, meetingID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete graph nodes: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// InsertNodes stores the given nodes, assigning IDs where missing.
func (s *GraphStore) InsertNodes(ctx context.Context, nodes []models.GraphNode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin node insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO graph_nodes (id, user_id, node_type, title, content, embedding, meeting_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer stmt.Close()

	for i := range nodes {
		node := &nodes[i]
		if node.ID == "" {
			node.ID = uuid.New().String()
		}
		_, err := stmt.ExecContext(ctx, node.ID, node.UserID, node.Type, node.Title,
			node.Content, pq.Array(floatsToDoubles(node.Embedding)), node.MeetingID)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
		}
	}

	return tx.Commit()
}

// InsertEdges stores the given edges, assigning IDs where missing.
func (s *GraphStore) InsertEdges(ctx context.Context, edges []models.GraphEdge) error {
	if len(edges) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin edge insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO graph_edges (id, from_id, to_id, relation, strength)
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer stmt.Close()

	for i := range edges {
		edge := &edges[i]
		if edge.ID == "" {
			edge.ID = uuid.New().String()
		}
		_, err := stmt.ExecContext(ctx, edge.ID, edge.FromID, edge.ToID, edge.Relation, edge.Strength)
		if err != nil {
			return fmt.Errorf("failed to insert edge %s -> %s: %w", edge.FromID, edge.ToID, err)
		}
	}

	return tx.Commit()
}

// NodesForMeeting returns the meeting's own nodes.
func (s *GraphStore) NodesForMeeting(ctx context.Context, meetingID string) ([]models.GraphNode, error) {
	return s.queryNodes(ctx, `
		SELECT id, user_id, node_type, title, content, embedding, meeting_id, created_at
		FROM graph_nodes WHERE meeting_id = $1 ORDER BY created_at, id`, meetingID)
}

// EdgesForNodes returns every edge touching any of the given nodes.
func (s *GraphStore) EdgesForNodes(ctx context.Context, nodeIDs []string) ([]models.GraphEdge, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_id, to_id, relation, strength, created_at
		FROM graph_edges
		WHERE from_id = ANY($1) OR to_id = ANY($1)
		ORDER BY created_at, id`, pq.Array(nodeIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch edges: %w", err)
	}
	defer rows.Close()

	var edges []models.GraphEdge
	for rows.Next() {
		var e models.GraphEdge
		if err := rows.Scan(&e.ID, &e.FromID, &e.ToID, &e.Relation, &e.Strength, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan edge row: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// NearestNeighbors returns the user's nodes most similar to the query vector,
// highest similarity first, dropping anything below threshold. The candidate
// set is fetched in full and ranked in memory; personal knowledge graphs stay
// small enough that a brute-force scan beats maintaining an index.
func (s *GraphStore) NearestNeighbors(ctx context.Context, userID string, query []float32, limit int, threshold float64) ([]models.ScoredNode, error) {
	nodes, err := s.queryNodes(ctx, `
		SELECT id, user_id, node_type, title, content, embedding, meeting_id, created_at
		FROM graph_nodes
		WHERE user_id = $1
		  AND embedding IS NOT NULL`,
		userID)
	if err != nil {
		return nil, err
	}

	scored := RankBySimilarity(nodes, query, threshold)
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	log.Debug().
		Str("user_id", userID).
		Int("candidates", len(nodes)).
		Int("hits", len(scored)).
		Msg("Nearest neighbor search completed")
	return scored, nil
}

// RankBySimilarity scores nodes against the query vector by cosine
// similarity and returns those at or above threshold, sorted by similarity
// descending with node ID as the tiebreaker.
func RankBySimilarity(nodes []models.GraphNode, query []float32, threshold float64) []models.ScoredNode {
	var scored []models.ScoredNode
	for _, node := range nodes {
		sim := CosineSimilarity(query, node.Embedding)
		if sim >= threshold {
			scored = append(scored, models.ScoredNode{Node: node, Similarity: sim})
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Node.ID < scored[j].Node.ID
	})
	return scored
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or degenerate vectors score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func (s *GraphStore) queryNodes(ctx context.Context, query string, args ...any) ([]models.GraphNode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch graph nodes: %w", err)
	}
	defer rows.Close()

	var nodes []models.GraphNode
	for rows.Next() {
		var (
			node      models.GraphNode
			embedding []float64
		)
		if err := rows.Scan(&node.ID, &node.UserID, &node.Type, &node.Title, &node.Content,
			pq.Array(&embedding), &node.MeetingID, &node.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}
		node.Embedding = doublesToFloats(embedding)
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}
