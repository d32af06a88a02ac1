package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meetgraph/pkg/models"
)

// Orchestrator dispatches a meeting to whichever stage its status calls for.
// It is the driver behind background processing; the HTTP stage endpoints
// invoke individual stages directly for manual retries.
type Orchestrator struct {
	meetings    MeetingStore
	transcripts TranscriptStore

	Transcription *TranscriptionStage
	Analysis      *AnalysisStage
	Linking       *LinkingStage

	log zerolog.Logger
}

func NewOrchestrator(meetings MeetingStore, transcripts TranscriptStore, transcription *TranscriptionStage, analysis *AnalysisStage, linking *LinkingStage, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		meetings:      meetings,
		transcripts:   transcripts,
		Transcription: transcription,
		Analysis:      analysis,
		Linking:       linking,
		log:           log.With().Str("component", "orchestrator").Logger(),
	}
}

// NextStage names the stage a meeting in the given status should run next.
// Empty means the meeting is terminal (or still recording) and nothing runs.
func (o *Orchestrator) NextStage(ctx context.Context, meeting *models.Meeting) (string, error) {
	switch meeting.Status {
	case models.StatusRecording:
		if meeting.AudioRef == "" {
			return "", nil
		}
		return StageTranscription, nil
	case models.StatusProcessing:
		return StageTranscription, nil
	case models.StatusAnalyzing:
		return StageAnalysis, nil
	case models.StatusLinking:
		return StageLinking, nil
	case models.StatusFailed:
		// A failed meeting retries the stage that failed. Which one that
		// was is not recorded; the presence of transcript segments tells
		// the two failure sources apart.
		segments, err := o.transcripts.ListByMeeting(ctx, meeting.ID)
		if err != nil {
			return "", err
		}
		if len(segments) > 0 {
			return StageAnalysis, nil
		}
		return StageTranscription, nil
	default:
		return "", nil
	}
}

// Stage names used for dispatch and job payloads.
const (
	StageTranscription = "transcription"
	StageAnalysis      = "analysis"
	StageLinking       = "linking"
)

// RunStage executes one named stage for a meeting and returns its diagnostic
// trace.
func (o *Orchestrator) RunStage(ctx context.Context, stage, meetingID string) ([]string, error) {
	o.log.Info().Str("meeting_id", meetingID).Str("run_stage", stage).Msg("Running pipeline stage")
	switch stage {
	case StageTranscription:
		_, steps, err := o.Transcription.Run(ctx, meetingID)
		return steps, err
	case StageAnalysis:
		_, steps, err := o.Analysis.Run(ctx, meetingID)
		return steps, err
	case StageLinking:
		_, steps, err := o.Linking.Run(ctx, meetingID)
		return steps, err
	default:
		return nil, fmt.Errorf("unknown pipeline stage %q", stage)
	}
}

// Advance runs the meeting's next due stage, if any. It returns the stage
// that ran (empty when the meeting had nothing to do).
func (o *Orchestrator) Advance(ctx context.Context, meetingID string) (string, []string, error) {
	meeting, err := o.meetings.Get(ctx, meetingID)
	if err != nil {
		return "", nil, err
	}

	stage, err := o.NextStage(ctx, meeting)
	if err != nil || stage == "" {
		return "", nil, err
	}

	steps, err := o.RunStage(ctx, stage, meetingID)
	return stage, steps, err
}
