// Package jobqueue runs the meeting pipeline in the background on a
// River-based job queue. Each stage is its own job kind; a stage's worker
// enqueues the next stage on success, so a meeting flows through the
// pipeline one durable job at a time.
package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog"

	"github.com/meetgraph/internal/pipeline"
)

const (
	maxWorkers = 5

	// stageMaxAttempts bounds River's retries per stage invocation. The
	// stages themselves are single-pass; retry lives here and in the
	// user-facing manual retry endpoints.
	stageMaxAttempts = 3
)

// TranscribeJobArgs requests transcription for one meeting.
type TranscribeJobArgs struct {
	MeetingID string `json:"meeting_id"`
}

func (TranscribeJobArgs) Kind() string { return "meeting_transcribe" }

func (TranscribeJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: stageMaxAttempts}
}

// AnalyzeJobArgs requests analysis for one meeting.
type AnalyzeJobArgs struct {
	MeetingID string `json:"meeting_id"`
}

func (AnalyzeJobArgs) Kind() string { return "meeting_analyze" }

func (AnalyzeJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: stageMaxAttempts}
}

// LinkJobArgs requests graph linking for one meeting.
type LinkJobArgs struct {
	MeetingID string `json:"meeting_id"`
}

func (LinkJobArgs) Kind() string { return "meeting_link" }

func (LinkJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: stageMaxAttempts}
}

// TranscribeWorker runs the transcription stage and chains into analysis.
type TranscribeWorker struct {
	river.WorkerDefaults[TranscribeJobArgs]
	orchestrator *pipeline.Orchestrator
	log          zerolog.Logger
}

func (w *TranscribeWorker) Work(ctx context.Context, job *river.Job[TranscribeJobArgs]) error {
	_, _, err := w.orchestrator.Transcription.Run(ctx, job.Args.MeetingID)
	if err != nil {
		// Bad input will not improve with retries; let River discard it.
		if errors.Is(err, pipeline.ErrNotFound) || errors.Is(err, pipeline.ErrInvalidState) {
			return river.JobCancel(err)
		}
		return err
	}

	client := river.ClientFromContext[pgx.Tx](ctx)
	if _, err := client.Insert(ctx, AnalyzeJobArgs{MeetingID: job.Args.MeetingID}, nil); err != nil {
		return fmt.Errorf("failed to enqueue analysis: %w", err)
	}
	return nil
}

// AnalyzeWorker runs the analysis stage and chains into linking.
type AnalyzeWorker struct {
	river.WorkerDefaults[AnalyzeJobArgs]
	orchestrator *pipeline.Orchestrator
	log          zerolog.Logger
}

func (w *AnalyzeWorker) Work(ctx context.Context, job *river.Job[AnalyzeJobArgs]) error {
	_, _, err := w.orchestrator.Analysis.Run(ctx, job.Args.MeetingID)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) || errors.Is(err, pipeline.ErrInvalidState) {
			return river.JobCancel(err)
		}
		return err
	}

	client := river.ClientFromContext[pgx.Tx](ctx)
	if _, err := client.Insert(ctx, LinkJobArgs{MeetingID: job.Args.MeetingID}, nil); err != nil {
		return fmt.Errorf("failed to enqueue linking: %w", err)
	}
	return nil
}

// LinkWorker runs the linking stage. Linking errors never fail the meeting,
// so they are logged here rather than returned for retry.
type LinkWorker struct {
	river.WorkerDefaults[LinkJobArgs]
	orchestrator *pipeline.Orchestrator
	log          zerolog.Logger
}

func (w *LinkWorker) Work(ctx context.Context, job *river.Job[LinkJobArgs]) error {
	_, _, err := w.orchestrator.Linking.Run(ctx, job.Args.MeetingID)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return river.JobCancel(err)
		}
		w.log.Warn().Err(err).Str("meeting_id", job.Args.MeetingID).Msg("Linking finished with errors")
	}
	return nil
}

// JobQueue manages the River client and its workers.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	log    zerolog.Logger
}

// NewJobQueue creates the queue on an existing pool. Pass workers=false for
// an insert-only client (the API process), true for a worker process.
func NewJobQueue(pool *pgxpool.Pool, orchestrator *pipeline.Orchestrator, runWorkers bool, log zerolog.Logger) (*JobQueue, error) {
	config := &river.Config{}
	if runWorkers {
		workers := river.NewWorkers()
		river.AddWorker(workers, &TranscribeWorker{orchestrator: orchestrator, log: log})
		river.AddWorker(workers, &AnalyzeWorker{orchestrator: orchestrator, log: log})
		river.AddWorker(workers, &LinkWorker{orchestrator: orchestrator, log: log})
		config.Workers = workers
		config.Queues = map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		}
	}

	client, err := river.NewClient(riverpgxv5.New(pool), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{client: client, log: log.With().Str("component", "jobqueue").Logger()}, nil
}

// Start begins working jobs. No-op wiring for insert-only clients is
// rejected by River itself.
func (q *JobQueue) Start(ctx context.Context) error {
	return q.client.Start(ctx)
}

// Stop drains workers gracefully.
func (q *JobQueue) Stop(ctx context.Context) error {
	return q.client.Stop(ctx)
}

// EnqueueTranscription queues the pipeline's first stage for a meeting.
func (q *JobQueue) EnqueueTranscription(ctx context.Context, meetingID string) error {
	_, err := q.client.Insert(ctx, TranscribeJobArgs{MeetingID: meetingID}, nil)
	if err != nil {
		return fmt.Errorf("failed to enqueue transcription: %w", err)
	}
	q.log.Info().Str("meeting_id", meetingID).Msg("Transcription job queued")
	return nil
}
