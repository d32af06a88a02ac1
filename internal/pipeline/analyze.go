package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/meetgraph/internal/ai"
	"github.com/meetgraph/internal/llm"
	"github.com/meetgraph/pkg/models"
)

// degradedSummaryLimit caps how much of an unparseable model response is kept
// as the note summary.
const degradedSummaryLimit = 500

// AnalysisStage turns a meeting's transcript into a structured note plus
// action items.
type AnalysisStage struct {
	meetings     MeetingStore
	transcripts  TranscriptStore
	notes        NoteStore
	actions      ActionStore
	generator    ai.Generator
	embedder     ai.Embedder
	modelVersion string
	log          zerolog.Logger
}

func NewAnalysisStage(meetings MeetingStore, transcripts TranscriptStore, notes NoteStore, actions ActionStore, generator ai.Generator, embedder ai.Embedder, modelVersion string, log zerolog.Logger) *AnalysisStage {
	return &AnalysisStage{
		meetings:     meetings,
		transcripts:  transcripts,
		notes:        notes,
		actions:      actions,
		generator:    generator,
		embedder:     embedder,
		modelVersion: modelVersion,
		log:          log.With().Str("stage", "analysis").Logger(),
	}
}

// AnalysisResult reports what a successful run produced.
type AnalysisResult struct {
	ActionItems   int      `json:"action_items"`
	Decisions     int      `json:"decisions"`
	OpenQuestions int      `json:"open_questions"`
	Degraded      bool     `json:"degraded,omitempty"`
	Steps         []string `json:"steps"`
}

// analysisPayload is the JSON contract demanded from the generation model.
type analysisPayload struct {
	Summary       string          `json:"summary"`
	ActionItems   []actionPayload `json:"action_items"`
	Decisions     []string        `json:"decisions"`
	OpenQuestions []string        `json:"open_questions"`
}

type actionPayload struct {
	Task     string  `json:"task"`
	Owner    *string `json:"owner"`
	Priority string  `json:"priority"`
	Deadline *string `json:"deadline"`
}

// Run executes the stage for one meeting. On success the meeting advances to
// linking; on failure it is marked failed (best-effort).
func (s *AnalysisStage) Run(ctx context.Context, meetingID string) (*AnalysisResult, []string, error) {
	trace := &Trace{}
	result, err := s.run(ctx, meetingID, trace)
	if err != nil {
		s.markFailed(ctx, meetingID, trace)
		return nil, trace.Steps(), err
	}
	result.Steps = trace.Steps()
	return result, trace.Steps(), nil
}

func (s *AnalysisStage) run(ctx context.Context, meetingID string, trace *Trace) (*AnalysisResult, error) {
	trace.Add("Fetching meeting %s", meetingID)
	meeting, err := s.meetings.Get(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	if meeting.Status != models.StatusAnalyzing {
		if _, err := s.meetings.TransitionStatus(ctx, meetingID,
			[]models.MeetingStatus{models.StatusProcessing, models.StatusFailed},
			models.StatusAnalyzing); err != nil {
			return nil, err
		}
	}
	trace.Add("Meeting is analyzing")

	segments, err := s.transcripts.ListByMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: meeting has no transcript", ErrInvalidState)
	}
	trace.Add("Loaded %d transcript segments", len(segments))

	transcript := TranscriptText(segments)
	trace.Add("Requesting analysis")
	response, err := s.generator.Generate(ctx, analysisPrompt(transcript, LanguageName(meeting.Language)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	payload, raw, degraded := parseAnalysis(response)
	if degraded {
		trace.Add("Response was not valid JSON, keeping truncated summary")
		s.log.Warn().Str("meeting_id", meetingID).Msg("Analysis response unparseable, degrading to raw summary")
	} else {
		trace.Add("Parsed analysis (%d actions, %d decisions, %d open questions)",
			len(payload.ActionItems), len(payload.Decisions), len(payload.OpenQuestions))
	}

	note := &models.MeetingNote{
		MeetingID:     meetingID,
		Summary:       payload.Summary,
		Decisions:     payload.Decisions,
		OpenQuestions: payload.OpenQuestions,
		Raw:           raw,
		ModelVersion:  s.modelVersion,
	}
	// The note embedding powers search over summaries. Losing it degrades
	// search, not the pipeline, so a failure here is logged and tolerated.
	if payload.Summary != "" && s.embedder != nil {
		if vec, err := s.embedder.Embed(ctx, payload.Summary); err != nil {
			s.log.Warn().Err(err).Str("meeting_id", meetingID).Msg("Could not embed note summary")
		} else {
			note.Embedding = vec
		}
	}

	if err := s.notes.Upsert(ctx, note); err != nil {
		return nil, err
	}
	trace.Add("Stored meeting note")

	items := make([]models.ActionItem, 0, len(payload.ActionItems))
	for _, a := range payload.ActionItems {
		task := strings.TrimSpace(a.Task)
		if task == "" {
			continue
		}
		items = append(items, models.ActionItem{
			Task:     task,
			Owner:    a.Owner,
			Priority: models.NormalizePriority(a.Priority),
			Deadline: a.Deadline,
			Status:   models.ActionOpen,
		})
	}
	if err := s.actions.ReplaceForMeeting(ctx, meetingID, items); err != nil {
		return nil, err
	}
	trace.Add("Stored %d action items", len(items))

	if _, err := s.meetings.TransitionStatus(ctx, meetingID,
		[]models.MeetingStatus{models.StatusAnalyzing}, models.StatusLinking); err != nil {
		return nil, err
	}
	trace.Add("Meeting advanced to linking")

	return &AnalysisResult{
		ActionItems:   len(items),
		Decisions:     len(payload.Decisions),
		OpenQuestions: len(payload.OpenQuestions),
		Degraded:      degraded,
	}, nil
}

func (s *AnalysisStage) markFailed(ctx context.Context, meetingID string, trace *Trace) {
	_, err := s.meetings.TransitionStatus(ctx, meetingID,
		[]models.MeetingStatus{models.StatusAnalyzing}, models.StatusFailed)
	if err != nil {
		s.log.Warn().Err(err).Str("meeting_id", meetingID).Msg("Could not mark meeting failed")
		return
	}
	trace.Add("Meeting marked failed")
}

// parseAnalysis interprets the model response, repairing common JSON defects.
// A response that stays unparseable degrades to a note whose summary is a
// truncated prefix of the raw text; this path never errors.
func parseAnalysis(response string) (analysisPayload, json.RawMessage, bool) {
	cleaned := llm.ExtractJSON(response)

	var payload analysisPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err == nil {
		return normalizePayload(payload), json.RawMessage(cleaned), false
	}

	if repaired, _, err := llm.RepairJSON(cleaned); err == nil {
		if err := json.Unmarshal([]byte(repaired), &payload); err == nil {
			return normalizePayload(payload), json.RawMessage(repaired), false
		}
	}

	summary := truncate(strings.TrimSpace(response), degradedSummaryLimit)
	return analysisPayload{
		Summary:       summary,
		ActionItems:   []actionPayload{},
		Decisions:     []string{},
		OpenQuestions: []string{},
	}, nil, true
}

func normalizePayload(p analysisPayload) analysisPayload {
	if p.ActionItems == nil {
		p.ActionItems = []actionPayload{}
	}
	if p.Decisions == nil {
		p.Decisions = []string{}
	}
	if p.OpenQuestions == nil {
		p.OpenQuestions = []string{}
	}
	return p
}

// TranscriptText flattens segments into one block, prefixing each line with
// its speaker label when present.
func TranscriptText(segments []models.TranscriptSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		if seg.Speaker != nil {
			b.WriteString(*seg.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

func analysisPrompt(transcript, language string) string {
	return fmt.Sprintf(`You are an assistant that analyzes meeting transcripts.

Analyze the following meeting transcript and respond with a single JSON object with exactly these four fields:
- "summary": a concise summary of the meeting (string)
- "action_items": an array of objects, each with "task" (string), "owner" (string or null), "priority" ("high", "medium" or "low"), "deadline" (string or null)
- "decisions": an array of strings, one per decision made in the meeting
- "open_questions": an array of strings, one per question left unresolved

Respond in %s. Output only the JSON object, without markdown fencing or any surrounding text.

Transcript:
%s`, language, transcript)
}
