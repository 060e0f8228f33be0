package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cdhttp "github.com/councild/councild/internal/adapter/http"
	"github.com/councild/councild/internal/adapter/litellm"
	cdnats "github.com/councild/councild/internal/adapter/nats"
	"github.com/councild/councild/internal/adapter/otel"
	"github.com/councild/councild/internal/adapter/postgres"
	"github.com/councild/councild/internal/adapter/promptfs"
	"github.com/councild/councild/internal/adapter/ws"
	"github.com/councild/councild/internal/config"
	"github.com/councild/councild/internal/domain/role"
	"github.com/councild/councild/internal/logger"
	"github.com/councild/councild/internal/resilience"
	"github.com/councild/councild/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"roles", len(cfg.Roles),
		"max_rounds", cfg.Deliberation.MaxRounds,
	)

	ctx := context.Background()

	// --- Telemetry ---
	otelShutdown, err := otel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	// --- Role bench ---
	prompts, err := promptfs.New(cfg.Prompts.Dir, cfg.Prompts.CacheSizeMB)
	if err != nil {
		return fmt.Errorf("prompts: %w", err)
	}
	defer prompts.Close()

	roles, err := role.Resolve(cfg.Roles, prompts)
	if err != nil {
		return fmt.Errorf("roles: %w", err)
	}

	// --- LLM proxy ---
	llmClient := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Engine ---
	hub := ws.NewHub()
	gate := service.NewHumanGate()

	engine := service.NewEngine(litellm.NewOpinionProvider(llmClient, cfg.LiteLLM), cfg.Deliberation)
	engine.SetHumanSource(gate)
	engine.SetBroadcaster(hub)

	if clerk := findClerk(roles); clerk != nil {
		engine.SetSummarizer(litellm.NewSummarizer(llmClient, cfg.LiteLLM, clerk.Instruction))
	} else {
		slog.Warn("no summarizer role configured, rounds advance without digests")
	}

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	engine.SetMetrics(metrics)

	// --- PostgreSQL (optional) ---
	var eventStore *postgres.EventStore
	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")

		eventStore = postgres.NewEventStore(pool)
		engine.SetEventStore(eventStore)
	} else {
		slog.Info("no postgres dsn, events kept in memory only")
	}

	// --- NATS (optional) ---
	if cfg.NATS.URL != "" {
		bus, err := cdnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = bus.Close() }()

		engine.SetOutcomeSink(bus)

		stopDecisions, err := bus.SubscribeDecisions(ctx, gate)
		if err != nil {
			return fmt.Errorf("decision subscriber: %w", err)
		}
		defer stopDecisions()
	} else {
		slog.Info("no nats url, human decisions arrive via HTTP only")
	}

	// --- HTTP ---
	handlers := cdhttp.NewHandlers(engine, roles, llmClient, hub)
	if eventStore != nil {
		handlers.SetEventStore(eventStore)
	}

	r := chi.NewRouter()
	r.Use(cdhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cdhttp.Logger)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	cdhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// findClerk returns the first enabled non-voting, non-speaking role, which
// by convention is the round summarizer.
func findClerk(roles []role.Role) *role.Role {
	for i := range roles {
		r := &roles[i]
		if r.Enabled && !r.CanVote && !r.MustSpeak {
			return r
		}
	}
	return nil
}
