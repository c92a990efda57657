// coachd is the HTTP+worker service wiring the asynchronous job-orchestration
// core together: Intake API, Job Registry, Worker dispatch pipeline, Topic
// Execution Engine, Configuration Resolver, Delivery Gateway, and the
// Postgres-backed EventBus — grounded on the teacher's cmd/tarsy/main.go
// (flag-parsed config dir, godotenv load, config.Initialize, database
// client, graceful shutdown), retargeted from TARSy's Gin/ent wiring to this
// module's echo/pgx stack.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tarsy-coach/coachcore/pkg/api"
	"github.com/tarsy-coach/coachcore/pkg/cleanup"
	"github.com/tarsy-coach/coachcore/pkg/config"
	"github.com/tarsy-coach/coachcore/pkg/delivery"
	"github.com/tarsy-coach/coachcore/pkg/events/pgbus"
	"github.com/tarsy-coach/coachcore/pkg/intake"
	"github.com/tarsy-coach/coachcore/pkg/provider"
	"github.com/tarsy-coach/coachcore/pkg/provider/genai"
	"github.com/tarsy-coach/coachcore/pkg/provider/stub"
	"github.com/tarsy-coach/coachcore/pkg/queue"
	"github.com/tarsy-coach/coachcore/pkg/store/pgstore"
	"github.com/tarsy-coach/coachcore/pkg/topic"
	"github.com/tarsy-coach/coachcore/pkg/topicconfig"
	"github.com/tarsy-coach/coachcore/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		slog.Info("loaded environment file", "path", envPath)
	}

	httpAddr := ":" + getEnv("HTTP_PORT", "8080")

	slog.Info("starting coachd", "version", version.Full(), "config_dir", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configDir, httpAddr); err != nil {
		slog.Error("coachd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configDir, httpAddr string) error {
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return fmt.Errorf("initialize configuration: %w", err)
	}

	dbCfg, err := pgstore.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load database config: %w", err)
	}

	dbClient, err := pgstore.Open(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer dbClient.Close()
	slog.Info("connected to PostgreSQL, migrations applied")

	jobs := pgstore.NewJobStore(dbClient.Pool)
	sessions := pgstore.NewSessionStore(dbClient.Pool)
	kv := pgstore.NewKVStore(dbClient.Pool)
	eventStore := pgstore.NewEventStore(dbClient.Pool)

	bus := pgbus.NewPublisher(dbClient.Pool)

	deliveryMgr := delivery.NewManager(eventStore, 10*time.Second)

	listenerDSN := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbCfg.Host, dbCfg.Port, dbCfg.User, dbCfg.Password, dbCfg.Database, dbCfg.SSLMode)
	listener := pgbus.NewListener(listenerDSN, deliveryMgr)
	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("start event listener: %w", err)
	}
	defer listener.Stop(context.Background())
	deliveryMgr.SetSubscriber(listener)
	if err := listener.Subscribe(ctx, "sessions"); err != nil {
		return fmt.Errorf("subscribe global sessions channel: %w", err)
	}

	providers := provider.NewRegistry()
	registerProviders(ctx, providers)

	engine := topic.NewEngine(kv, kv, providers)

	configStore := pgstore.NewConfigStore(dbClient.Pool)
	resolver := topicconfig.NewResolver(configStore, nil)

	intakeSvc := intake.NewService(jobs, sessions, bus)

	podID := getEnv("POD_ID", uuid.NewString())
	workerPool := queue.NewWorkerPool(podID, cfg.Queue.ToWorkerConfig(), jobs, sessions, engine, resolver, bus)
	if err := workerPool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	defer workerPool.Stop()

	reaper := cleanup.NewReaper(cfg.Retention, jobs, sessions, eventStore)
	reaper.Start(ctx)
	defer reaper.Stop()

	server := api.NewServer(intakeSvc, jobs, sessions, workerPool, deliveryMgr, dbClient)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpAddr)
		if err := server.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	return nil
}

// registerProviders binds model_code -> ModelProvider. A genai client backed
// by GEMINI_API_KEY is registered when present; otherwise a deterministic
// stub fills the default slot so the service remains runnable without a
// live API key (e.g. local development, smoke tests).
func registerProviders(ctx context.Context, reg *provider.Registry) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		slog.Warn("GEMINI_API_KEY not set, registering stub provider only")
		reg.Register(genai.DefaultModel, stub.New("stub response: set GEMINI_API_KEY for live generations"))
		return
	}

	client, err := genai.NewClient(ctx, apiKey)
	if err != nil {
		slog.Error("failed to create genai client, falling back to stub provider", "error", err)
		reg.Register(genai.DefaultModel, stub.New("stub response: genai client unavailable"))
		return
	}
	reg.Register(genai.DefaultModel, client)
}
