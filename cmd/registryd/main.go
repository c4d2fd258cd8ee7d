package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"implregistry/internal/api"
	"implregistry/internal/config"
	"implregistry/internal/deploy"
	"implregistry/internal/models"
	"implregistry/internal/orchestrator"
	"implregistry/internal/retry"
	"implregistry/internal/services"
	"implregistry/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	fmt.Println("Starting Implementation Registry...")

	// 1. Load configuration
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		"network", cfg.NetworkPassphrase,
		"database", cfg.DatabaseURL != "",
		"api_port", cfg.APIPort,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Open the store
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	// 4. Create orchestrator with services
	orch := orchestrator.New([]services.Service{
		services.NewAuditLogService(logger),
		services.NewMetricsService(),
	})
	slog.Info("Orchestrator enabled", "services", len(orch.Services()))

	// 5. Deploy registry and factory
	opts := deploy.Options{
		NetworkPassphrase: cfg.NetworkPassphrase,
		MaxTypeNameLength: cfg.MaxTypeNameLength,
		Store:             store,
		Publisher:         orch,
	}
	if opts.Deployer, err = cfg.Deployer(); err != nil {
		log.Fatalf("Invalid deployer: %v", err)
	}
	if opts.RegistryAddress, err = optionalAddress(cfg.RegistryAddress); err != nil {
		log.Fatalf("Invalid registry address: %v", err)
	}
	if opts.FactoryAddress, err = optionalAddress(cfg.FactoryAddress); err != nil {
		log.Fatalf("Invalid factory address: %v", err)
	}

	d, err := deploy.Deploy(ctx, opts)
	if err != nil {
		log.Fatalf("Failed to deploy: %v", err)
	}

	// 6. Seed from the manifest
	if cfg.SeedManifest != "" {
		m, err := deploy.LoadManifest(cfg.SeedManifest)
		if err != nil {
			log.Fatalf("Failed to load seed manifest: %v", err)
		}
		if _, err := d.Apply(ctx, m); err != nil {
			log.Fatalf("Failed to apply seed manifest: %v", err)
		}
	}

	// 7. Record deployed addresses
	if cfg.DeploymentsOut != "" {
		if err := deploy.NewJournal(cfg.DeploymentsOut).RecordDeployment(d); err != nil {
			slog.Error("Failed to write deployments file", "path", cfg.DeploymentsOut, "error", err)
		}
	}

	// 8. Start the API server
	server := api.NewServer(cfg.APIPort, api.Backend{
		Registry:  d.Registry,
		Factory:   d.Factory,
		Store:     store,
		Templates: d.Templates(),
	})
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	// 9. Wait for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	slog.Warn("Interrupt received, shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error stopping API server", "error", err)
	}

	slog.Info("Registry stopped")
}

// openStore connects to PostgreSQL, retrying while the database comes up, or falls back
// to the in-memory store when no database is configured
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, state is kept in memory only")
		return storage.NewMemoryStore(), nil
	}

	var store *storage.PostgresStore
	strategy := retry.NewStrategy(cfg.Retry)
	err := strategy.Execute(ctx, "connect database", func(ctx context.Context) error {
		var err error
		store, err = storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	slog.Info("Database connected successfully")
	return store, nil
}

func optionalAddress(s string) (models.Address, error) {
	if s == "" {
		return models.Address{}, nil
	}
	return models.ParseAddress(s)
}
