// Package server provides the operator HTTP API with lifecycle management.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/reelimport/internal/config"
	"github.com/raphaelgruber/reelimport/internal/metrics"
	"github.com/raphaelgruber/reelimport/internal/models"
)

// Operator is the import control surface. *service.Controller implements it.
type Operator interface {
	StartDiscovery(ctx context.Context, restart bool) (models.ImportProgress, error)
	StopDiscovery(ctx context.Context) (models.ImportProgress, error)
	ResumeDiscovery(ctx context.Context) (models.ImportProgress, error)
	Progress(ctx context.Context) (models.ImportProgress, error)
	SecondaryProgress(ctx context.Context) ([]models.ImportProgress, error)
	Report(ctx context.Context) (models.ProgressReport, error)
	ImportList(ctx context.Context, key, listID string) (*models.ImportJob, error)
	ImportFestival(ctx context.Context, festival string, from, to int) ([]models.ImportJob, error)
	JobCounts(ctx context.Context) ([]models.JobCount, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]models.ImportJob, error)
	RetryJob(ctx context.Context, id string) (*models.ImportJob, error)
	ListSkipped(ctx context.Context, decision string, limit int) ([]models.SkippedImport, error)
	MovieCounts(ctx context.Context) (models.MovieCounts, error)
	Movie(ctx context.Context, ref string) (*models.MovieDetail, error)
	SourceMovies(ctx context.Context, key string, limit int) ([]models.Movie, error)
	Person(ctx context.Context, tmdbID int) (*models.Person, error)
	ReloadPolicy() (config.Policy, error)
}

// Pinger checks the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps the gin engine with dependencies and lifecycle management.
type Server struct {
	engine         *gin.Engine
	op             Operator
	collector      *metrics.Collector
	pinger         Pinger
	logger         *slog.Logger
	streamInterval time.Duration
	upgrader       websocket.Upgrader
}

// Option customises a Server.
type Option func(*Server)

// WithStreamInterval sets how often the progress stream pushes a report.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) { s.streamInterval = d }
}

// New creates the API server. stats and pinger may be nil.
func New(op Operator, stats *metrics.Collector, pinger Pinger, logger *slog.Logger, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:         gin.New(),
		op:             op,
		collector:      stats,
		pinger:         pinger,
		logger:         logger,
		streamInterval: 2 * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine.Use(gin.Recovery(), LoggingMiddleware(logger))
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("operator API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down operator API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
