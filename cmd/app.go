package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/meetgraph/internal/ai"
	"github.com/meetgraph/internal/ai/gemini"
	"github.com/meetgraph/internal/ai/langchain"
	"github.com/meetgraph/internal/api"
	"github.com/meetgraph/internal/config"
	"github.com/meetgraph/internal/database"
	"github.com/meetgraph/internal/jobqueue"
	"github.com/meetgraph/internal/logging"
	"github.com/meetgraph/internal/pipeline"
	"github.com/meetgraph/internal/search"
	"github.com/meetgraph/internal/store"
)

// app holds one process's wired dependencies. The API server and the worker
// process share this bootstrap; they differ only in whether the job queue
// runs workers.
type app struct {
	cfg  *config.Config
	log  zerolog.Logger
	pool *pgxpool.Pool
	db   *sql.DB

	orchestrator *pipeline.Orchestrator
	queue        *jobqueue.JobQueue
	deps         api.Deps
}

func buildApp(ctx context.Context, configPath string, runWorkers bool) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	log := logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	db, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		pool.Close()
		return nil, err
	}

	meetings := store.NewMeetingStore(pool)
	transcripts := store.NewTranscriptStore(pool)
	notes := store.NewNoteStore(pool)
	actions := store.NewActionStore(pool)
	graph := store.NewGraphStore(db)
	audio, err := store.NewAudioStore(cfg.Audio.Dir)
	if err != nil {
		pool.Close()
		db.Close()
		return nil, err
	}

	// Transcription always speaks the Gemini files API; generation and
	// embeddings follow the configured provider.
	transcriber, err := gemini.New(gemini.Config{
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		BaseURL: cfg.AI.BaseURL,
	}, log)
	if err != nil {
		pool.Close()
		db.Close()
		return nil, err
	}
	connector, err := langchain.NewConnector(ctx, langchain.ConnectorOptions{
		Provider:       langchain.Provider(cfg.AI.Provider),
		APIKey:         cfg.AI.APIKey,
		BaseURL:        cfg.AI.BaseURL,
		Model:          cfg.AI.Model,
		EmbeddingModel: cfg.AI.EmbeddingModel,
		Temperature:    cfg.AI.Temperature,
	})
	if err != nil {
		pool.Close()
		db.Close()
		return nil, err
	}
	gateway := ai.NewResilientGateway(ai.Gateway{
		Transcriber: transcriber,
		Generator:   connector,
		Embedder:    connector,
	}, log)

	transcription := pipeline.NewTranscriptionStage(meetings, transcripts, audio, gateway, log)
	analysis := pipeline.NewAnalysisStage(meetings, transcripts, notes, actions, gateway, gateway, connector.ModelVersion(), log)
	linking := pipeline.NewLinkingStage(meetings, transcripts, notes, actions, graph, gateway, log)
	orchestrator := pipeline.NewOrchestrator(meetings, transcripts, transcription, analysis, linking, log)

	queue, err := jobqueue.NewJobQueue(pool, orchestrator, runWorkers, log)
	if err != nil {
		pool.Close()
		db.Close()
		return nil, err
	}

	searcher := search.NewService(graph, meetings, gateway, log)

	return &app{
		cfg:          cfg,
		log:          log,
		pool:         pool,
		db:           db,
		orchestrator: orchestrator,
		queue:        queue,
		deps: api.Deps{
			Meetings:     meetings,
			Transcripts:  transcripts,
			Notes:        notes,
			Actions:      actions,
			Graph:        graph,
			Audio:        audio,
			Orchestrator: orchestrator,
			Searcher:     searcher,
			Queue:        queue,
			Log:          log,
		},
	}, nil
}

func (a *app) close() {
	a.pool.Close()
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Could not close graph db connection")
	}
}
