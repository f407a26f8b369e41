// Package app wires the import pipeline: store, providers, handlers, worker
// pools and the operator API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/reelimport/internal/cache"
	"github.com/raphaelgruber/reelimport/internal/config"
	"github.com/raphaelgruber/reelimport/internal/db"
	"github.com/raphaelgruber/reelimport/internal/metrics"
	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/raphaelgruber/reelimport/internal/provider"
	"github.com/raphaelgruber/reelimport/internal/quality"
	"github.com/raphaelgruber/reelimport/internal/queue"
	"github.com/raphaelgruber/reelimport/internal/server"
	"github.com/raphaelgruber/reelimport/internal/service"
	"golang.org/x/sync/errgroup"
)

// cachePruneInterval is how often expired provider responses are deleted.
const cachePruneInterval = time.Hour

// App holds every long-lived dependency of the server.
type App struct {
	cfg        config.Config
	logger     *slog.Logger
	db         *db.Client
	cache      *cache.Cache
	metrics    *metrics.Collector
	controller *service.Controller
	runner     *queue.Runner
	server     *server.Server
}

// Providers are the external sources the handlers read from.
type Providers struct {
	Catalog   service.Catalog
	Enricher  service.Enricher
	Lists     service.ListScraper
	Festivals service.CeremonyScraper
}

// New connects to the store, opens the response cache and wires the pipeline.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	policy, err := config.NewPolicyStore(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	dbClient, err := db.NewClient(ctx, StoreConfig(cfg), config.Component(logger, "surrealdb"))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := dbClient.InitSchema(ctx); err != nil {
		_ = dbClient.Close(ctx)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	// The cache only saves provider calls; run without it if it cannot open.
	respCache, err := cache.Open(cfg.CachePath, cfg.CacheTTL)
	if err != nil {
		logger.Warn("response cache disabled", "path", cfg.CachePath, "error", err)
		respCache = nil
	}

	mc := metrics.NewCollector()
	providers := NewProviders(cfg, policy.Load(), respCache, mc, logger)

	a := Wire(cfg, dbClient, policy, providers, mc, logger)
	a.db = dbClient
	a.cache = respCache
	return a, nil
}

// StoreConfig maps the environment config onto the store connection.
func StoreConfig(cfg config.Config) db.Config {
	return db.Config{
		URL:              cfg.SurrealDBURL,
		Namespace:        cfg.SurrealDBNamespace,
		Database:         cfg.SurrealDBDatabase,
		Username:         cfg.SurrealDBUser,
		Password:         cfg.SurrealDBPass,
		AuthLevel:        cfg.SurrealDBAuthLevel,
		ConnectTimeout:   cfg.SurrealDBConnectTimeout,
		ReconnectInitial: cfg.SurrealDBReconnectInitial,
		ReconnectMax:     cfg.SurrealDBReconnectMax,
		ReconnectRetries: cfg.SurrealDBReconnectRetries,
	}
}

// NewProviders creates the provider clients. Every client of one provider
// shares a single rate gate.
func NewProviders(cfg config.Config, p config.Policy, respCache *cache.Cache, rec provider.Recorder, logger *slog.Logger) Providers {
	gates := provider.NewGates()
	newClient := func(name, baseURL string, decorate func(*http.Request)) *provider.Client {
		limits := p.Providers[name]
		return provider.NewClient(name, baseURL, limits, gates.For(name, limits),
			provider.WithDecorator(decorate),
			provider.WithRecorder(rec),
			provider.WithLogger(config.Component(logger, "provider_"+name)),
		)
	}

	var tmdbCache provider.ResponseCache
	if respCache != nil {
		tmdbCache = respCache
	}

	out := Providers{
		Catalog: provider.NewTMDb(newClient(provider.NameTMDb, cfg.TMDbBaseURL, provider.TMDbAuth(cfg.TMDbAPIKey)), tmdbCache),
	}
	if cfg.OMDbAPIKey != "" {
		out.Enricher = provider.NewOMDb(newClient(provider.NameOMDb, cfg.OMDbBaseURL, provider.OMDbAuth(cfg.OMDbAPIKey)))
	} else {
		logger.Info("OMDb key not set, enrichment disabled")
	}

	scraper := newClient(provider.NameScrape, cfg.ScrapeBaseURL, nil)
	out.Lists = provider.NewListSource(scraper)
	out.Festivals = provider.NewFestivalSource(scraper)
	return out
}

// PipelineStore is everything the handlers and the runner need from storage.
type PipelineStore interface {
	service.Store
	queue.Store
	server.Pinger
}

// Wire builds handlers, worker pools and the API on top of store.
func Wire(cfg config.Config, store PipelineStore, policy *config.PolicyStore, providers Providers, mc *metrics.Collector, logger *slog.Logger) *App {
	p := policy.Load()
	gate := quality.NewGate(p.Quality)
	reconciler := service.NewReconciler(store, mc)

	detail := service.NewDetail(service.DetailDeps{
		Store:      store,
		Reconciler: reconciler,
		Catalog:    providers.Catalog,
		Enricher:   providers.Enricher,
		Gate:       gate,
		Policy:     policy,
		Counter:    mc,
	})
	discovery := service.NewDiscovery(store, providers.Catalog, policy)
	secondary := service.NewSecondary(store, reconciler, providers.Lists, providers.Festivals, policy)
	controller := service.NewController(store, policy, gate)

	runner := queue.NewRunner(store,
		queue.WithPollInterval(cfg.PollInterval),
		queue.WithJobTimeout(cfg.JobTimeout),
		queue.WithBackoff(queue.ExponentialBackoff(p.Queue.BackoffInitial, p.Queue.BackoffMax)),
		queue.WithRecorder(mc),
		queue.WithLogger(config.Component(logger, "runner")),
	)
	runner.Register(models.JobKindDiscoveryPage, discovery)
	runner.Register(models.JobKindMovieDetail, detail)
	runner.Register(models.JobKindListPage, secondary)
	runner.Register(models.JobKindCeremony, secondary)

	runner.AddPool(queue.Pool{Name: "discovery", Kinds: []models.JobKind{models.JobKindDiscoveryPage}, Workers: cfg.DiscoveryWorkers})
	runner.AddPool(queue.Pool{Name: "detail", Kinds: []models.JobKind{models.JobKindMovieDetail}, Workers: cfg.DetailWorkers})
	runner.AddPool(queue.Pool{Name: "secondary", Kinds: []models.JobKind{models.JobKindListPage, models.JobKindCeremony}, Workers: cfg.SecondaryWorkers})

	return &App{
		cfg:        cfg,
		logger:     logger,
		metrics:    mc,
		controller: controller,
		runner:     runner,
		server:     server.New(controller, mc, store, config.Component(logger, "api")),
	}
}

// Controller returns the operator surface.
func (a *App) Controller() *service.Controller {
	return a.controller
}

// Handler returns the operator API handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run recovers an interrupted crawl, then runs the worker pools, the API
// and cache maintenance until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.controller.Recover(ctx); err != nil {
		return fmt.Errorf("recover discovery: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runner.Run(gctx)
	})
	g.Go(func() error {
		return a.server.Run(gctx, ":"+a.cfg.ServerPort)
	})
	if a.cache != nil {
		g.Go(func() error {
			a.pruneCache(gctx)
			return nil
		})
	}
	return g.Wait()
}

func (a *App) pruneCache(ctx context.Context) {
	ticker := time.NewTicker(cachePruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.cache.Prune(ctx)
			if err != nil {
				a.logger.Warn("cache prune failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Debug("cache pruned", "entries", n)
			}
		}
	}
}

// WipeData deletes all data from the database. Use for testing only.
func (a *App) WipeData(ctx context.Context) error {
	return a.db.WipeData(ctx)
}

// Close closes the store and the cache.
func (a *App) Close(ctx context.Context) error {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close cache", "error", err)
		}
	}
	if a.db != nil {
		return a.db.Close(ctx)
	}
	return nil
}
