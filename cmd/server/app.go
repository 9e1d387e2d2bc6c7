package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plotforge/plotforge-api/internal/broadcast"
	"github.com/plotforge/plotforge-api/internal/cache"
	"github.com/plotforge/plotforge-api/internal/config"
	"github.com/plotforge/plotforge-api/internal/events"
	"github.com/plotforge/plotforge-api/internal/llm"
	"github.com/plotforge/plotforge-api/internal/llm/gemini"
	"github.com/plotforge/plotforge-api/internal/llm/mock"
	"github.com/plotforge/plotforge-api/internal/llm/openai"
	"github.com/plotforge/plotforge-api/internal/platform/postgres"
	"github.com/plotforge/plotforge-api/internal/render"
	"github.com/plotforge/plotforge-api/internal/service"
	"github.com/plotforge/plotforge-api/internal/storage"
	"github.com/plotforge/plotforge-api/internal/store"
	"github.com/plotforge/plotforge-api/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	db    *sql.DB
	redis *redis.Client

	registry *render.Registry
	runner   *task.Runner

	// jobService is the boundary surface callers drive the pipeline through.
	jobService service.JobService
}

// newApplication wires the full dependency graph bottom-up: database and
// stores, broadcast transport, event bus, LLM provider chain, executors,
// scheduler and the boundary service.
func newApplication(cfg *config.Config, log *slog.Logger) (*application, error) {
	db, err := openDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	jobs := postgres.NewPostgresJobStore(db)
	tasks := postgres.NewPostgresRenderTaskStore(db)
	captions := postgres.NewPostgresCaptionTaskStore(db)
	eventLog := postgres.NewPostgresEventLogStore(db)
	transactor := store.NewSQLTransactor(db)

	app := &application{
		config: cfg,
		logger: log,
		db:     db,
	}

	var broadcaster broadcast.Broadcaster
	var statusCache cache.Cache
	if cfg.Redis.Addr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rb, err := broadcast.NewRedisBroadcaster(ctx, app.redis, log)
		cancel()
		if err != nil {
			app.shutdown()
			return nil, fmt.Errorf("failed to connect redis broadcaster: %w", err)
		}
		broadcaster = rb
		statusCache = cache.NewRedisCache(app.redis)
		log.Info("using redis broadcast and status cache", "addr", cfg.Redis.Addr)
	} else {
		broadcaster = broadcast.NewMemoryBroadcaster(log)
		statusCache = cache.NoopCache{}
		log.Info("no redis configured, using in-memory broadcast")
	}

	bus := events.NewBus(jobs, tasks, captions, eventLog, broadcaster, log)

	// Deployments register their algorithm set here before accepting work.
	app.registry = render.NewRegistry()

	router, err := buildProviderChain(cfg, log)
	if err != nil {
		app.shutdown()
		return nil, err
	}

	captionExec := task.NewCaptionExecutor(
		captions, bus, router,
		cfg.LLM.RequestTimeout, cfg.LLM.MaxRetries, log)

	// Artifacts live in process memory and do not survive a restart.
	// Deployments needing durable artifacts substitute their own
	// storage.Storage implementation here.
	executor := task.NewExecutor(
		jobs, tasks, captions, bus,
		app.registry, storage.NewMemoryStorage(), captionExec, log)

	aggregator := task.NewAggregator(transactor, jobs, tasks, bus, statusCache, log)

	app.runner = task.NewRunner(task.RunnerConfig{
		WorkerCount: cfg.Scheduler.WorkerCount,
		QueueSize:   cfg.Scheduler.QueueSize,
	}, log)

	scheduler := task.NewScheduler(jobs, tasks, bus, executor, aggregator, app.runner, log)

	app.jobService = service.NewJobService(
		transactor, jobs, tasks, captions, eventLog,
		bus, scheduler, aggregator, broadcaster, statusCache, log)

	return app, nil
}

// start launches the background workers.
func (app *application) start() {
	app.runner.Start()
}

// shutdown releases everything newApplication acquired, tolerating a
// partially constructed application.
func (app *application) shutdown() {
	if app.runner != nil {
		app.runner.Stop()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn("failed to close database", "error", err)
		}
	}
}

// buildProviderChain assembles the caption provider fallback order from
// configuration: gemini, then openai, then the terminal mock provider that
// cannot fail. Providers without an API key are left out.
func buildProviderChain(cfg *config.Config, log *slog.Logger) (*llm.Router, error) {
	var entries []llm.Entry

	if cfg.LLM.GeminiAPIKey != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		provider, err := gemini.NewProvider(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiModel, log)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini provider: %w", err)
		}
		entries = append(entries, llm.Entry{Name: "gemini", Provider: provider})
	}

	if cfg.LLM.OpenAIAPIKey != "" {
		provider, err := openai.NewProvider(cfg.LLM.OpenAIAPIKey, "", cfg.LLM.OpenAIModel, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai provider: %w", err)
		}
		entries = append(entries, llm.Entry{Name: "openai", Provider: provider})
	}

	entries = append(entries, llm.Entry{Name: "mock", Provider: mock.NewProvider()})

	hooks := llm.Hooks{
		OnFallback: func(from string, err error) {
			log.Warn("caption provider exhausted, falling back",
				"provider", from, "error", err)
		},
	}

	return llm.NewRouter(entries, hooks, log), nil
}
