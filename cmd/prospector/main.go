package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mosaic-crm/prospector/internal/api"
	"github.com/mosaic-crm/prospector/internal/archive"
	"github.com/mosaic-crm/prospector/internal/config"
	"github.com/mosaic-crm/prospector/internal/events"
	"github.com/mosaic-crm/prospector/internal/gemini"
	"github.com/mosaic-crm/prospector/internal/lead"
	"github.com/mosaic-crm/prospector/internal/orchestrator"
	"github.com/mosaic-crm/prospector/internal/provider"
	"github.com/mosaic-crm/prospector/internal/session"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("prospector starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session store — the only shared mutable state in the engine.
	sessions := session.NewStore(session.Options{
		TTL:     cfg.SessionTTL,
		Ceiling: cfg.SessionCeiling,
		Logger:  slog.Default(),
	})
	defer sessions.Close()

	// Providers
	var providers []provider.Provider
	if cfg.GeminiAPIKey != "" {
		llm := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiTimeout)
		providers = append(providers, provider.NewGenerative(
			llm, cfg.GeminiModel, cfg.GeminiProModel, cfg.GeminiTimeout, slog.Default()))
		slog.Info("generative provider ready", "model", cfg.GeminiModel)
	} else {
		slog.Warn("GEMINI_API_KEY not set — generative provider disabled")
	}
	if cfg.BrightDataToken != "" {
		providers = append(providers, provider.NewBrightData(provider.BrightDataConfig{
			Token:        cfg.BrightDataToken,
			Zone:         cfg.BrightDataZone,
			CollectorURL: cfg.BrightDataCollectorURL,
			DatasetID:    cfg.BrightDataDatasetID,
			Timeout:      cfg.BrightDataTimeout,
		}, slog.Default()))
		slog.Info("brightdata provider ready", "zone", cfg.BrightDataZone)
	}
	if cfg.MockProvider {
		providers = append(providers, provider.NewMock(0))
		slog.Warn("mock provider enabled")
	}
	if len(providers) == 0 {
		slog.Error("no providers configured")
		os.Exit(1)
	}

	// Archive (optional — the engine owns no database rows of its own)
	var arch orchestrator.Archiver
	if cfg.DatabaseURL != "" {
		db, err := archive.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		arch = db
		slog.Info("archive database connected")
	} else {
		slog.Warn("DATABASE_URL not set — running without session archive")
	}

	// NATS (optional — prospector works without the bus, HTTP only)
	var bus *events.Client
	var sink orchestrator.EventSink
	if cfg.NatsURL != "" {
		var err error
		bus, err = events.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		sink = bus
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS_URL not set — running without event bus")
	}

	orch := orchestrator.New(sessions, providers, sink, arch, cfg.SessionCeiling, slog.Default())

	// Bus-submitted generation requests behave exactly like POST /start.
	if bus != nil {
		err := bus.Subscribe(events.SubjectRequest, func(subject string, data []byte) {
			var params lead.GenerationParameters
			if err := json.Unmarshal(data, &params); err != nil {
				slog.Error("failed to parse generation request", "error", err)
				return
			}
			params.Normalize()
			if err := params.Validate(); err != nil {
				slog.Error("rejected generation request", "error", err)
				return
			}
			sess := sessions.Create(params)
			orch.Start(sess.ID)
			slog.Info("bus session created", "session_id", sess.ID)
		})
		if err != nil {
			slog.Error("failed to subscribe to generation requests", "error", err)
			os.Exit(1)
		}

		if err := bus.Publish(events.SubjectRegistered, map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, sessions, orch, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("prospector ready", "port", cfg.Port, "providers", orch.Providers())

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := orch.Shutdown(drainCtx); err != nil {
		slog.Warn("sessions still in flight at shutdown", "error", err)
	}
	slog.Info("prospector stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
