package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/rpattn/unitdash/internal/config"
	"github.com/rpattn/unitdash/internal/dashboard"
	"github.com/rpattn/unitdash/internal/db"
	"github.com/rpattn/unitdash/internal/gallery"
	"github.com/rpattn/unitdash/internal/ingestion"
	"github.com/rpattn/unitdash/internal/logger"
	"github.com/rpattn/unitdash/internal/repository"
	"github.com/rpattn/unitdash/internal/session"
	"github.com/rpattn/unitdash/internal/storage"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:          "unitdash",
		Short:        "Unit filter and figure gallery dashboard",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configDir)
		},
	}
	root.PersistentFlags().StringVar(&configDir, "config", ".", "directory holding config.yaml")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configDir)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the session table migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := setup(configDir)
			if err != nil {
				return err
			}
			return db.RunMigrations(cfg.Database, log)
		},
	})
	return root
}

func setup(configDir string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logger.New(cfg.Log.Logger())
	slog.SetDefault(log)
	if cfg.File != "" {
		log.Info("loaded config", "file", cfg.File)
	} else {
		log.Info("no config.yaml found, using defaults and env vars")
	}
	return cfg, log, nil
}

func serve(parent context.Context, configDir string) error {
	cfg, log, err := setup(configDir)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var conn *db.Connection
	if cfg.NeedsDatabase() {
		conn, err = db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer conn.Close()
	}

	loader := ingestion.NewService(
		ingestion.WithCategoricalColumns(cfg.Dataset.CategoricalColumns...),
		ingestion.WithSheet(cfg.Dataset.Sheet),
		ingestion.WithLogger(log),
	)
	dataset, err := loadDataset(ctx, cfg.Dataset, loader, conn)
	if err != nil {
		return err
	}

	store, closeStore, err := openSessionStore(ctx, cfg, conn, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if pruner, ok := store.(session.Pruner); ok && cfg.Session.TTL > 0 && cfg.Session.PruneInterval > 0 {
		go session.RunPruner(ctx, pruner, cfg.Session.TTL, cfg.Session.PruneInterval, log)
	}

	figures, err := openFigureStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	gallerySvc, err := gallery.NewService(figures, cfg.Gallery.GalleryService(), log)
	if err != nil {
		return err
	}

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	dash := dashboard.NewServer(dashboard.Config{
		Dataset:       dataset,
		Ingestion:     loader,
		Sessions:      session.NewManager(store),
		Gallery:       gallerySvc,
		Logger:        log,
		PageSize:      cfg.Server.PageSize,
		SecureCookies: cfg.Server.SecureCookies,
		APIMiddleware: corsHandler.Handler,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      dash.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting dashboard", "addr", cfg.Server.Addr, "rows", dataset.Table().Len(), "source", dataset.Source())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}

func loadDataset(ctx context.Context, cfg config.DatasetConfig, loader *ingestion.Service, conn *db.Connection) (*ingestion.Dataset, error) {
	if cfg.Query != "" {
		table, err := loader.LoadQuery(ctx, conn.Pool, cfg.Query)
		if err != nil {
			return nil, err
		}
		return ingestion.NewDataset(table, "query"), nil
	}

	var headerRow *int
	if cfg.HeaderRow >= 0 {
		headerRow = &cfg.HeaderRow
	}
	table, err := loader.LoadFile(ctx, cfg.Path, headerRow)
	if err != nil {
		return nil, err
	}
	return ingestion.NewDataset(table, cfg.Path), nil
}

func openSessionStore(_ context.Context, cfg config.Config, conn *db.Connection, log *slog.Logger) (session.Store, func(), error) {
	noop := func() {}
	switch cfg.Session.Backend {
	case "pebble":
		repo, err := repository.OpenPebbleSessionRepository(cfg.Session.PebbleDir)
		if err != nil {
			return nil, noop, err
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				log.Warn("failed to close session store", "error", err)
			}
		}, nil
	case "postgres":
		if err := db.RunMigrations(cfg.Database, log); err != nil {
			return nil, noop, err
		}
		return repository.NewSessionRepository(conn.Pool), noop, nil
	default:
		return session.NewMemoryStore(), noop, nil
	}
}

func openFigureStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	if cfg.Backend == "local" {
		return storage.NewLocalStore(cfg.LocalDir), nil
	}
	s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
		Region:       cfg.S3.Region,
		Endpoint:     cfg.S3.Endpoint,
		Anonymous:    cfg.S3.Anonymous,
		UsePathStyle: cfg.S3.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return s3Store, nil
}
