// Package app wires Alfred together: storage, oracle provider, feature
// registry, intent router, confirmation gate, dispatcher, and the Matrix
// transport.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bdobrica/Alfred/internal/alfred/confirm"
	"github.com/bdobrica/Alfred/internal/alfred/dispatch"
	"github.com/bdobrica/Alfred/internal/alfred/feature"
	"github.com/bdobrica/Alfred/internal/alfred/features/calendar"
	"github.com/bdobrica/Alfred/internal/alfred/features/chat"
	"github.com/bdobrica/Alfred/internal/alfred/features/funfact"
	"github.com/bdobrica/Alfred/internal/alfred/features/search"
	"github.com/bdobrica/Alfred/internal/alfred/matrix"
	"github.com/bdobrica/Alfred/internal/alfred/memory"
	"github.com/bdobrica/Alfred/internal/alfred/oracle"
	"github.com/bdobrica/Alfred/internal/alfred/persona"
	"github.com/bdobrica/Alfred/internal/alfred/router"
	"github.com/bdobrica/Alfred/internal/alfred/store"
)

// Config holds application configuration.
type Config struct {
	DatabasePath string
	Matrix       matrix.Config

	// Oracle is the LLM provider configuration.
	Oracle oracle.Config

	// OracleProvider is an optional pre-constructed provider (used in
	// tests). When non-nil the Oracle field is ignored.
	OracleProvider oracle.Provider

	// ConfidenceThreshold gates routing decisions; 0 means the router
	// default (0.6).
	ConfidenceThreshold float64

	// ContextMaxTurns and ContextWindow bound the per-user conversation
	// context; zeros mean the memory defaults (10 turns / 15 minutes).
	ContextMaxTurns int
	ContextWindow   time.Duration

	// ConfirmTTL is the staleness cutoff for pending confirmations; 0 means
	// the gate default (5 minutes).
	ConfirmTTL time.Duration

	// OracleRateLimit is the maximum oracle calls per user per minute;
	// 0 means the oracle default (20).
	OracleRateLimit int

	// PersonaPath is an optional persona YAML file; empty means the
	// embedded defaults.
	PersonaPath string

	// HTTPAddr is the TCP address for the optional health HTTP server
	// (e.g. ":8080"). When empty the server is disabled.
	HTTPAddr string
}

// App is the assembled Alfred application.
type App struct {
	config       *Config
	store        *store.Store
	dispatcher   *dispatch.Dispatcher
	matrix       *matrix.Client
	healthServer *HealthServer
}

// New creates the application from config. Feature registration order is
// significant: task features first, the conversational fallback last.
func New(config *Config) (*App, error) {
	db, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	provider := config.OracleProvider
	if provider == nil {
		provider = oracle.New(config.Oracle)
	}

	p := persona.Default()
	if config.PersonaPath != "" {
		p, err = persona.Load(config.PersonaPath)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to load persona: %w", err)
		}
	}

	chatFeature := chat.New(provider, p)

	registry := feature.NewRegistry()
	for _, f := range []feature.Feature{
		calendar.New(provider, db),
		search.New(provider, p),
		funfact.New(provider),
		chatFeature, // fallback, must stay last
	} {
		if err := registry.Register(f); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to register feature: %w", err)
		}
	}

	contexts := memory.NewStore(memory.StoreConfig{
		MaxTurns: config.ContextMaxTurns,
		Window:   config.ContextWindow,
	})
	gate := confirm.NewGate(confirm.NewOracleResolver(provider), config.ConfirmTTL)
	classifier := router.NewClassifier(provider, config.ConfidenceThreshold)
	limiter := oracle.NewRateLimiter(config.OracleRateLimit, time.Minute)

	dispatcher := dispatch.New(dispatch.Config{
		Registry:      registry,
		Classifier:    classifier,
		Contexts:      contexts,
		Gate:          gate,
		Limiter:       limiter,
		OracleTimeout: config.Oracle.Timeout,
	})

	mxConfig := config.Matrix
	mxConfig.DB = db.DB()
	mxConfig.Intro = chatFeature.Intro()
	mx, err := matrix.New(&mxConfig)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	app := &App{
		config:     config,
		store:      db,
		dispatcher: dispatcher,
		matrix:     mx,
	}

	if config.HTTPAddr != "" {
		app.healthServer = NewHealthServer(config.HTTPAddr, dispatcher)
	}

	slog.Info("Alfred assembled",
		"features", registry.Len(),
		"threshold", classifier.Threshold(),
		"db", config.DatabasePath)

	return app, nil
}

// Run starts the transport and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(a.dispatcher.HandleMessage); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	slog.Info("Alfred is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	return nil
}

// Stop releases application resources.
func (a *App) Stop() {
	if a.matrix != nil {
		a.matrix.Stop()
	}
	if a.healthServer != nil {
		a.healthServer.Stop()
	}
	if a.store != nil {
		a.store.Close()
	}
}
