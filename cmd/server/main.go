package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/portfolio/backend/internal/config"
	"github.com/portfolio/backend/internal/docstore"
	"github.com/portfolio/backend/internal/handler"
	"github.com/portfolio/backend/internal/logging"
	"github.com/portfolio/backend/internal/repository"
	"github.com/portfolio/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("invalid configuration", "error", err)
	}
	logging.Setup(cfg.LogLevel)

	store := openStore(cfg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			slog.Warn("store close failed", "error", err)
		}
	}()

	contactRepo := repository.NewDocContactRepository(store)
	contactService := service.NewContactService(contactRepo)

	h := handler.New(store, cfg.FrontendURL, cfg.HealthExposeErrors, handler.WithStoreTimeout(cfg.StoreOperationTimeout))
	contactHandler := handler.NewContactHandler(contactService, cfg.MessagesDefaultLimit, cfg.MessagesMaxLimit)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler.Routes(h, contactHandler),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	go func() {
		slog.Info("server listening", "addr", server.Addr, "frontend_url", cfg.FrontendURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// openStore connects to the configured document store. Unless STORE_REQUIRED
// is set, a failed connection leaves the API running: store-backed operations
// report the failure and retry the connection every STORE_RETRY_INTERVAL.
func openStore(cfg config.Config) docstore.Store {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreConnectTimeout)
	defer cancel()

	storeCfg := docstore.Config{
		URL:            cfg.DatabaseURL,
		Database:       cfg.DatabaseName,
		ConnectTimeout: cfg.StoreConnectTimeout,
	}
	store, err := docstore.Connect(ctx, storeCfg)
	if err != nil {
		if cfg.StoreRequired {
			logging.Fatal("store connection failed", "database", cfg.DatabaseName, "error", err)
		}
		slog.Warn("store connection failed, will retry on demand",
			"database", cfg.DatabaseName,
			"retry_interval", cfg.StoreRetryInterval,
			"error", err,
		)
		return docstore.NewDeferred(docstore.DeferredConfig{
			Store:         storeCfg,
			Cause:         err,
			RetryInterval: cfg.StoreRetryInterval,
			OnConnect: func(ctx context.Context, s docstore.Store) {
				slog.InfoContext(ctx, "store connected", "database", cfg.DatabaseName)
				if cfg.StoreAutoSetup {
					ensureContactCollection(ctx, s)
				}
			},
		})
	}
	slog.Info("store connected", "database", cfg.DatabaseName)

	if cfg.StoreAutoSetup {
		setupCtx, setupCancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer setupCancel()
		ensureContactCollection(setupCtx, store)
	}
	return store
}

func ensureContactCollection(ctx context.Context, store docstore.Store) {
	if err := store.EnsureCollection(ctx, repository.ContactCollection); err != nil {
		slog.WarnContext(ctx, "ensure collection failed", "collection", repository.ContactCollection, "error", err)
	}
}
