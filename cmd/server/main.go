// Package main provides the entry point for the quizcheck server
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/api"
	"github.com/Caia-Tech/caia-quizcheck/internal/pipeline"
	"github.com/Caia-Tech/caia-quizcheck/internal/presentation"
	"github.com/Caia-Tech/caia-quizcheck/internal/storage"
	"github.com/Caia-Tech/caia-quizcheck/internal/temporal/activities"
	"github.com/Caia-Tech/caia-quizcheck/internal/temporal/workflows"
	"github.com/Caia-Tech/caia-quizcheck/pkg/config"
	"github.com/Caia-Tech/caia-quizcheck/pkg/logging"
	"github.com/rs/zerolog/log"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	closer, err := logging.SetupLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	// Create metrics collector and question set storage
	metricsCollector := storage.NewSimpleMetricsCollector()
	store, err := storage.New(cfg.Storage, metricsCollector)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	// Event bus for run and storage events
	events := pipeline.NewEventBus(256, cfg.Pipeline.MaxWorkers)
	defer events.Close()
	if _, err := events.Subscribe([]pipeline.EventType{
		pipeline.EventRunCompleted, pipeline.EventRunFailed, pipeline.EventSetStored,
	}, logEvent, 64); err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe event logger")
	}

	p := pipeline.New(pipeline.OptionsFromConfig(cfg.Pipeline, events))

	// Temporal client and worker for batch validation
	var temporalClient client.Client
	if cfg.Temporal.Enabled {
		temporalClient, err = client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			log.Fatal().Err(err).Str("host", cfg.Temporal.HostPort).Msg("Failed to create Temporal client")
		}
		defer temporalClient.Close()

		w := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{
			MaxConcurrentActivityExecutionSize:     10,
			MaxConcurrentWorkflowTaskExecutionSize: 10,
		})
		w.RegisterWorkflow(workflows.BatchValidationWorkflow)
		w.RegisterActivity(activities.NewActivities(p, store))

		// Start worker in background
		go func() {
			if err := w.Run(worker.InterruptCh()); err != nil {
				log.Fatal().Err(err).Msg("Failed to start worker")
			}
		}()
	}

	// Validation API
	app := api.NewApp(cfg.Server)
	h := api.NewHandlers(api.Options{
		Pipeline:     p,
		Store:        store,
		Events:       events,
		Temporal:     temporalClient,
		TaskQueue:    cfg.Temporal.TaskQueue,
		MaxInputSize: int(cfg.Pipeline.MaxInputSize),
	})
	api.SetupRoutes(app, h, api.NewStorageHandler(store, metricsCollector))

	// Read-only presentation API
	var presentationAPI *presentation.API
	if cfg.Presentation.Enabled {
		apiConfig := presentation.DefaultAPIConfig()
		apiConfig.Host = cfg.Server.Host
		apiConfig.Port = cfg.Presentation.Port
		presentationAPI = presentation.NewAPI(presentation.NewRenderer(nil), store, apiConfig)
		go func() {
			if err := presentationAPI.Start(); err != nil {
				log.Error().Err(err).Msg("Presentation API stopped")
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if presentationAPI != nil {
			if err := presentationAPI.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("Presentation API shutdown error")
			}
		}
		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().
		Str("address", addr).
		Str("storage", cfg.Storage.Backend).
		Bool("temporal", cfg.Temporal.Enabled).
		Bool("presentation", cfg.Presentation.Enabled).
		Msg("Starting quizcheck server")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}

// loadConfig starts from the QUIZCHECK_ENV preset, reads QUIZCHECK_CONFIG over it when set, then
// applies env overrides
func loadConfig() (*config.Config, error) {
	cfg := config.Preset(getEnv("QUIZCHECK_ENV", "default"))

	if path := getEnv("QUIZCHECK_CONFIG", ""); path != "" {
		loaded, err := config.LoadOver(path, cfg)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func logEvent(ctx context.Context, event *pipeline.RunEvent) error {
	entry := log.Info()
	if event.Type == pipeline.EventRunFailed {
		entry = log.Warn().Str("error", event.Error)
	}
	entry.
		Str("event", string(event.Type)).
		Str("run_id", event.RunID).
		Str("set_id", event.SetID).
		Interface("stage", event.Metadata["stage"]).
		Msg("Pipeline event")
	return nil
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
