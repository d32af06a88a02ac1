// Package api exposes the meeting pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/meetgraph/internal/jobqueue"
	"github.com/meetgraph/internal/pipeline"
	"github.com/meetgraph/internal/search"
	"github.com/meetgraph/internal/store"
)

// Server hosts the REST API.
type Server struct {
	echo *echo.Echo
	port int

	meetings    *store.MeetingStore
	transcripts *store.TranscriptStore
	notes       *store.NoteStore
	actions     *store.ActionStore
	graph       *store.GraphStore
	audio       *store.AudioStore

	orchestrator *pipeline.Orchestrator
	searcher     *search.Service
	queue        *jobqueue.JobQueue

	log zerolog.Logger
}

// Deps bundles everything the server needs. Queue may be nil; without it,
// attaching audio does not start background processing and the stage
// endpoints are the only way to drive the pipeline.
type Deps struct {
	Meetings    *store.MeetingStore
	Transcripts *store.TranscriptStore
	Notes       *store.NoteStore
	Actions     *store.ActionStore
	Graph       *store.GraphStore
	Audio       *store.AudioStore

	Orchestrator *pipeline.Orchestrator
	Searcher     *search.Service
	Queue        *jobqueue.JobQueue

	Log zerolog.Logger
}

// NewServer creates the API server and wires its routes.
func NewServer(port int, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:         e,
		port:         port,
		meetings:     deps.Meetings,
		transcripts:  deps.Transcripts,
		notes:        deps.Notes,
		actions:      deps.Actions,
		graph:        deps.Graph,
		audio:        deps.Audio,
		orchestrator: deps.Orchestrator,
		searcher:     deps.Searcher,
		queue:        deps.Queue,
		log:          deps.Log.With().Str("component", "api").Logger(),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	v1 := s.echo.Group("/api/v1")

	v1.POST("/meetings", s.createMeeting)
	v1.GET("/meetings", s.listMeetings)
	v1.GET("/meetings/:id", s.getMeeting)
	v1.DELETE("/meetings/:id", s.deleteMeeting)
	v1.POST("/meetings/:id/audio", s.attachAudio)
	v1.GET("/meetings/:id/graph", s.getMeetingGraph)

	v1.POST("/meetings/:id/transcribe", s.runTranscription)
	v1.POST("/meetings/:id/analyze", s.runAnalysis)
	v1.POST("/meetings/:id/link", s.runLinking)

	v1.PATCH("/actions/:id", s.updateAction)
	v1.GET("/search", s.searchGraph)
}

// Start runs the server until an interrupt, then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	s.log.Info().Int("port", s.port).Msg("API server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

// userID identifies the caller. Authentication is an outer concern; the
// header is trusted as-is and absent callers share a default scope.
func userID(c echo.Context) string {
	if id := c.Request().Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "default"
}

// stageFailure renders a failed stage run with its diagnostic trace.
func stageFailure(c echo.Context, steps []string, err error) error {
	if steps == nil {
		steps = []string{}
	}
	return c.JSON(errorStatus(err), map[string]any{
		"error": err.Error(),
		"steps": steps,
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrInvalidState), errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
}
