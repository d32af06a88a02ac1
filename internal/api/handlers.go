package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/meetgraph/internal/search"
	"github.com/meetgraph/internal/store"
	"github.com/meetgraph/pkg/models"
)

// maxAudioBytes caps uploads at 200MB. Gemini rejects larger files anyway.
const maxAudioBytes = 200 << 20

type createMeetingRequest struct {
	Title    string  `json:"title"`
	Language string  `json:"language"`
	OrgID    *string `json:"org_id"`
}

func (s *Server) createMeeting(c echo.Context) error {
	var req createMeetingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "title is required"})
	}

	meeting, err := s.meetings.Create(c.Request().Context(), userID(c), req.OrgID, req.Title, req.Language)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, meeting)
}

func (s *Server) listMeetings(c echo.Context) error {
	limit, _ := intQuery(c, "limit")
	meetings, err := s.meetings.List(c.Request().Context(), userID(c), limit)
	if err != nil {
		return errorJSON(c, err)
	}
	if meetings == nil {
		meetings = []models.Meeting{}
	}
	return c.JSON(http.StatusOK, map[string]any{"meetings": meetings})
}

func (s *Server) getMeeting(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	meeting, err := s.meetings.Get(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}

	segments, err := s.transcripts.ListByMeeting(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}
	actions, err := s.actions.ListByMeeting(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}

	response := map[string]any{
		"meeting":      meeting,
		"transcript":   orEmptySegments(segments),
		"action_items": orEmptyActions(actions),
	}
	note, err := s.notes.GetByMeeting(ctx, id)
	if err == nil {
		response["note"] = note
	} else if !errors.Is(err, store.ErrNotFound) {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, response)
}

func (s *Server) deleteMeeting(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	meeting, err := s.meetings.Get(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}

	// Segments, the note and action items cascade through foreign keys,
	// but graph nodes only have their meeting reference nulled. Remove
	// them explicitly so the meeting's knowledge does not linger.
	if _, err := s.graph.DeleteForMeeting(ctx, id); err != nil {
		return errorJSON(c, err)
	}
	if err := s.meetings.Delete(ctx, id); err != nil {
		return errorJSON(c, err)
	}
	if err := s.audio.Delete(meeting.AudioRef); err != nil {
		s.log.Warn().Err(err).Str("meeting_id", id).Msg("Could not delete audio file")
	}

	return c.NoContent(http.StatusNoContent)
}

// attachAudio stores the uploaded audio and, when a job queue is wired,
// starts background processing. Accepts either a multipart "audio" file or a
// raw request body.
func (s *Server) attachAudio(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	meeting, err := s.meetings.Get(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}

	filename, data, err := readAudio(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if len(data) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "audio payload is empty"})
	}

	ref, err := s.audio.Save(meeting.ID, filename, data)
	if err != nil {
		return errorJSON(c, err)
	}
	if err := s.meetings.SetAudioRef(ctx, meeting.ID, ref); err != nil {
		return errorJSON(c, err)
	}

	// Fresh uploads move the meeting into processing right away. Re-attaching
	// audio to a meeting past recording leaves the status alone; the stage
	// entry handles retries from failed.
	if _, err := s.meetings.TransitionStatus(ctx, meeting.ID,
		[]models.MeetingStatus{models.StatusRecording}, models.StatusProcessing); err != nil {
		if !errors.Is(err, store.ErrInvalidTransition) {
			s.log.Warn().Err(err).Str("meeting_id", meeting.ID).Msg("Could not advance meeting to processing")
		}
	}

	queued := false
	if s.queue != nil {
		if err := s.queue.EnqueueTranscription(ctx, meeting.ID); err != nil {
			s.log.Warn().Err(err).Str("meeting_id", meeting.ID).Msg("Could not queue transcription")
		} else {
			queued = true
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"audio_ref": ref,
		"bytes":     len(data),
		"queued":    queued,
	})
}

func readAudio(c echo.Context) (string, []byte, error) {
	if file, err := c.FormFile("audio"); err == nil {
		src, err := file.Open()
		if err != nil {
			return "", nil, err
		}
		defer src.Close()
		data, err := io.ReadAll(io.LimitReader(src, maxAudioBytes))
		return file.Filename, data, err
	}

	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxAudioBytes))
	if err != nil {
		return "", nil, err
	}
	filename := c.QueryParam("filename")
	if filename == "" {
		filename = "audio.bin"
	}
	return filename, data, nil
}

func (s *Server) runTranscription(c echo.Context) error {
	result, steps, err := s.orchestrator.Transcription.Run(c.Request().Context(), c.Param("id"))
	if err != nil {
		return stageFailure(c, steps, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"segments": result.Segments,
		"steps":    result.Steps,
	})
}

func (s *Server) runAnalysis(c echo.Context) error {
	result, steps, err := s.orchestrator.Analysis.Run(c.Request().Context(), c.Param("id"))
	if err != nil {
		return stageFailure(c, steps, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":        true,
		"action_items":   result.ActionItems,
		"decisions":      result.Decisions,
		"open_questions": result.OpenQuestions,
		"degraded":       result.Degraded,
		"steps":          result.Steps,
	})
}

func (s *Server) runLinking(c echo.Context) error {
	result, steps, err := s.orchestrator.Linking.Run(c.Request().Context(), c.Param("id"))
	if err != nil {
		return stageFailure(c, steps, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":       true,
		"nodes_deleted": result.NodesDeleted,
		"nodes_created": result.NodesCreated,
		"edges_created": result.EdgesCreated,
		"steps":         result.Steps,
	})
}

func (s *Server) getMeetingGraph(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if _, err := s.meetings.Get(ctx, id); err != nil {
		return errorJSON(c, err)
	}

	nodes, err := s.graph.NodesForMeeting(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}
	nodeIDs := make([]string, len(nodes))
	for i, n := range nodes {
		nodeIDs[i] = n.ID
	}
	edges, err := s.graph.EdgesForNodes(ctx, nodeIDs)
	if err != nil {
		return errorJSON(c, err)
	}

	if nodes == nil {
		nodes = []models.GraphNode{}
	}
	if edges == nil {
		edges = []models.GraphEdge{}
	}
	return c.JSON(http.StatusOK, map[string]any{"nodes": nodes, "edges": edges})
}

type updateActionRequest struct {
	Status models.ActionItemStatus `json:"status"`
}

func (s *Server) updateAction(c echo.Context) error {
	var req updateActionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if !models.ValidActionStatus(req.Status) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "status must be open, done or cancelled"})
	}

	item, err := s.actions.UpdateStatus(c.Request().Context(), c.Param("id"), req.Status)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) searchGraph(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "q is required"})
	}
	limit, _ := intQuery(c, "limit")
	uid := c.QueryParam("user_id")
	if uid == "" {
		uid = userID(c)
	}

	hits, err := s.searcher.Query(c.Request().Context(), uid, query, limit)
	if err != nil {
		return errorJSON(c, err)
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	return c.JSON(http.StatusOK, map[string]any{"query": query, "results": hits})
}

func intQuery(c echo.Context, name string) (int, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, false
	}
	var n int
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func orEmptySegments(s []models.TranscriptSegment) []models.TranscriptSegment {
	if s == nil {
		return []models.TranscriptSegment{}
	}
	return s
}

func orEmptyActions(a []models.ActionItem) []models.ActionItem {
	if a == nil {
		return []models.ActionItem{}
	}
	return a
}
