package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/grump-ai/grump-engine/internal/config"
	"github.com/grump-ai/grump-engine/internal/generate"
	"github.com/grump-ai/grump-engine/internal/intent"
	"github.com/grump-ai/grump-engine/internal/jobs"
	"github.com/grump-ai/grump-engine/internal/pipeline"
	"github.com/grump-ai/grump-engine/shared/database"
	"github.com/grump-ai/grump-engine/shared/logger"
	"github.com/grump-ai/grump-engine/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("GRUMP_WORKER_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("backend", string(cfg.QueueBackend())),
	)

	// Initialize database client and job store
	dbClient, err := initDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	store := jobs.NewStore(dbClient.DB(), appLogger.Logger)
	if err := store.Init(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize job store: %w", err)
	}

	appLogger.Info("Database connection established",
		slog.String("driver", cfg.Database.Driver),
	)

	// Build the pipeline and its worker
	orchestrator := newOrchestrator(cfg, appLogger.Logger)
	worker := jobs.NewWorker(store, orchestrator, appLogger.Logger, cfg.Worker.JobTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var queue jobs.Queue
	if cfg.QueueBackend() == config.BackendDistributed {
		rabbitClient, err := initRabbitMQ(&cfg.Queue, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		queue = jobs.NewDistributedQueue(store, worker, rabbitClient, appLogger.Logger, cfg.Queue.PrefetchCount)
		appLogger.Info("RabbitMQ connection established")
	} else {
		embedded := jobs.NewEmbeddedQueue(store, worker, appLogger.Logger)
		embedded.SetPollInterval(cfg.Worker.PollInterval)
		queue = embedded
	}

	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue: %w", err)
	}

	// Sandbox test jobs run on their own poll loop over the same store
	sandbox := jobs.NewSandboxQueue(store, &jobs.CommandSandboxRunner{
		Command: cfg.Sandbox.Command,
		Timeout: cfg.Sandbox.Timeout,
		Logger:  appLogger.Logger,
	}, appLogger.Logger)
	sandbox.SetPollInterval(cfg.Worker.PollInterval)
	if err := sandbox.Start(ctx); err != nil {
		queue.Stop()
		return fmt.Errorf("failed to start sandbox queue: %w", err)
	}

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	// Stop both queues; Stop waits for the in-flight job
	shutdownTimeout := cfg.Worker.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		queue.Stop()
		sandbox.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initDatabase initializes the job store database client
func initDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Client, error) {
	dbConfig := &database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return database.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.QueueConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		User:          cfg.User,
		Password:      cfg.Password,
		VHost:         cfg.VHost,
		QueueName:     cfg.Name,
		RetryAttempts: cfg.RetryAttempts,
		RetryInterval: cfg.RetryInterval,
		Heartbeat:     cfg.Heartbeat,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// newOrchestrator wires the seven-stage pipeline. The intent stage prefers
// the grump-intent subprocess, with the local extractor registered as its
// degraded mode; when the binary is unavailable the local extractor is the
// primary and no fallback is needed.
func newOrchestrator(cfg *config.Config, logger *slog.Logger) *pipeline.Orchestrator {
	var parser pipeline.IntentParser = generate.LocalIntent{}
	subprocess := false

	path := cfg.Intent.Path
	if path == "" {
		resolved, err := intent.ResolveExecutable()
		if err != nil {
			logger.Warn("Intent compiler not found, using local extractor",
				slog.Any("error", err),
			)
		}
		path = resolved
	}

	if path != "" {
		parser = intent.NewRunner(intent.RunnerConfig{
			Path:    path,
			Timeout: cfg.Intent.Timeout,
			Logger:  logger,
		})
		subprocess = true
	}

	services := generate.DefaultServices(parser)
	if subprocess {
		services.IntentFallback = generate.LocalIntent{}
	}
	return pipeline.New(services, pipeline.Config{
		FailFast: cfg.FailFast(),
		Stages:   cfg.StageConfigs(),
		Logger:   logger,
	})
}
