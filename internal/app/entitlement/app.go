// Package entitlement собирает HTTP-приложение сервиса подписок: хранилище,
// миграции, кэш, клиентов процессора платежей и хранилища учётных записей,
// бизнес-сервисы и маршруты.
package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/zappod/entitlement-service/internal/appleclient"
	"github.com/zappod/entitlement-service/internal/cache"
	"github.com/zappod/entitlement-service/internal/config"
	"github.com/zappod/entitlement-service/internal/identitysync"
	"github.com/zappod/entitlement-service/internal/migrations"
	expiryservice "github.com/zappod/entitlement-service/internal/services/expiry"
	reconcileservice "github.com/zappod/entitlement-service/internal/services/reconcile"
	redemptionservice "github.com/zappod/entitlement-service/internal/services/redemption"
	"github.com/zappod/entitlement-service/internal/storage/repository"
)

// App — HTTP-приложение сервиса подписок.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
}

// New инициализирует зависимости приложения и собирает HTTP-сервер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	appleClient := appleclient.New(cfg.AppleVerification)

	var syncer redemptionservice.MetadataSyncer
	if cfg.IdentitySync.SyncAuthMetadata {
		syncer = identitysync.New(cfg.IdentitySync)
	}

	redemptionService := redemptionservice.New(db, cacheRedis, syncer, logger)
	expiryService := expiryservice.New(db, cacheRedis, syncer, logger)
	reconcileService := reconcileservice.New(db, appleClient, cacheRedis, syncer, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, redemptionService, expiryService, reconcileService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.db.DB.Close()
		return err
	}
}
