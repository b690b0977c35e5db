package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/entlabel/internal/api"
	"github.com/dgallion1/entlabel/internal/catalog"
	"github.com/dgallion1/entlabel/internal/config"
	"github.com/dgallion1/entlabel/internal/pathstore"
	"github.com/dgallion1/entlabel/internal/persist"
	"github.com/dgallion1/entlabel/internal/stats"
	"github.com/dgallion1/entlabel/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(cfg)
	if err != nil {
		log.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}

	cat := catalog.FromNames(cfg.CatalogEntities)
	if cfg.CatalogFile != "" {
		cat, err = catalog.Load(cfg.CatalogFile)
		if err != nil {
			log.Error("failed to load catalog", "path", cfg.CatalogFile, "error", err)
			os.Exit(1)
		}
	}

	// Initialize background saving.
	latency := stats.New(1 * time.Hour)
	saver := persist.NewSaver(persist.Config{
		Debounce:     cfg.SaveDebounce,
		Workers:      cfg.SaveWorkers,
		MaxQueueSize: cfg.MaxQueueSize,
		JobTTL:       cfg.SessionTTL,
	}, st, latency, log)
	saver.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(st, saver, cat, latency, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		// Write out edits still waiting on their debounce.
		saver.Stop()
		if err := st.Close(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()

	log.Info("starting entlabel", "port", cfg.Port, "store", cfg.StoreBackend, "catalog_size", cat.Len())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.StoreBackend == config.BackendPathstore {
		return store.NewPathstoreStore(pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)), nil
	}
	return store.OpenSQLite(cfg.SQLitePath)
}
