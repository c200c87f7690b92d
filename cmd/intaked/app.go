package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/intake/config"
	"github.com/c360studio/intake/eventstream"
	"github.com/c360studio/intake/runtime"
	"github.com/c360studio/intake/storage"
	"github.com/c360studio/intake/validation"
)

// App wires together the orchestrator and its collaborators: NATS
// connectivity, JetStream KV-backed storage, the schema (optionally
// hot-reloaded), and an optional TTL scheduler.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	embeddedServer *server.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream

	store        *storage.Store
	schemaWatch  *validation.SchemaWatcher
	orchestrator *runtime.Orchestrator
	scheduler    runtime.Scheduler
}

// NewApp constructs an App from configuration without starting any I/O.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// Start connects to NATS, opens the submission store, compiles the schema,
// and constructs the orchestrator.
func (a *App) Start(ctx context.Context) error {
	if err := a.startNATS(ctx); err != nil {
		return fmt.Errorf("start NATS: %w", err)
	}

	if err := eventstream.EnsureStream(ctx, a.js); err != nil {
		return fmt.Errorf("ensure event stream: %w", err)
	}

	store, err := storage.NewStore(ctx, a.js, a.cfg.Intake.ID)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	a.store = store

	schemaPath := a.cfg.Intake.SchemaPath

	var validator runtime.Validator
	var schemaJSON []byte
	if a.cfg.Intake.WatchSchema {
		watcher, err := validation.NewSchemaWatcher(a.cfg.Intake.ID, schemaPath, a.logger)
		if err != nil {
			return fmt.Errorf("start schema watcher: %w", err)
		}
		watcher.Start(ctx)
		a.schemaWatch = watcher
		validator = watcher
	} else {
		data, err := os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("read schema %q: %w", schemaPath, err)
		}
		schemaJSON = data
	}

	metrics := runtime.NewMetrics(prometheus.DefaultRegisterer)
	sink := eventstream.New(a.js, a.cfg.Intake.ID)

	orch, err := runtime.New(runtime.Config{
		IntakeID:  a.cfg.Intake.ID,
		Schema:    schemaJSON,
		Validator: validator,
		Storage:   a.store,
		Metrics:   metrics,
		Sink:      sink,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("construct orchestrator: %w", err)
	}
	a.orchestrator = orch

	if a.cfg.Intake.DefaultTTL > 0 {
		a.scheduler = runtime.NewTickerScheduler(30*time.Second, a.orchestrator.ExpirableSubmissions, a.logger)
		a.scheduler.Start(ctx, func(ctx context.Context, submissionID string) error {
			return a.orchestrator.Expire(ctx, submissionID)
		})
	}

	a.logger.Info("intake runtime started", "intake_id", a.cfg.Intake.ID)
	return nil
}

func (a *App) startNATS(ctx context.Context) error {
	if a.cfg.NATS.URL != "" && !a.cfg.NATS.Embedded {
		a.logger.Info("connecting to NATS", "url", a.cfg.NATS.URL)
		conn, err := nats.Connect(a.cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
	} else {
		a.logger.Info("starting embedded NATS server")
		opts := &server.Options{
			Port:      -1,
			JetStream: true,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}
		a.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			ns.Shutdown()
			return fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js

	return nil
}

// Shutdown gracefully releases every component the App started.
func (a *App) Shutdown(timeout time.Duration) {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.schemaWatch != nil {
		a.schemaWatch.Stop()
	}
	if a.natsConn != nil {
		a.natsConn.Drain()
		a.natsConn.Close()
	}
	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}
	a.logger.Info("intake runtime stopped")
}

// Orchestrator exposes the constructed orchestrator for the HTTP binding
// and CLI subcommands.
func (a *App) Orchestrator() *runtime.Orchestrator {
	return a.orchestrator
}
