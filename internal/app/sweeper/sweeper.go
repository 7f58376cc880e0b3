// Package sweeper содержит воркер пакетного истечения подписок: по таймеру
// обходит типы семейства basic, переводит истёкшие строки в free и публикует
// события о переводе в RabbitMQ.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/zappod/entitlement-service/internal/cache"
	"github.com/zappod/entitlement-service/internal/config"
	"github.com/zappod/entitlement-service/internal/identitysync"
	"github.com/zappod/entitlement-service/internal/rabbitmq"
	expiryservice "github.com/zappod/entitlement-service/internal/services/expiry"
	"github.com/zappod/entitlement-service/internal/storage/repository"
)

const defaultSweepInterval = time.Hour

// App представляет приложение воркера истечения подписок.
type App struct {
	expiryService *expiryservice.Service
	conn          *amqp.Connection
	ch            *amqp.Channel
	interval      time.Duration
	logger        *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр воркера.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.AMQPURL, cfg.AMQPMaxRetries, cfg.AMQPRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	queues := rabbitmq.GetEntitlementQueues()
	ch, err := rabbitmq.SetupChannel(conn, queues)
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(db); err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	var syncer expiryservice.MetadataSyncer
	if cfg.IdentitySync.SyncAuthMetadata {
		syncer = identitysync.New(cfg.IdentitySync)
	}

	expiryService := expiryservice.New(db, cacheRedis, syncer, logger)

	interval := cfg.SweepInterval
	if interval == 0 {
		interval = defaultSweepInterval
	}

	return &App{
		expiryService: expiryService,
		conn:          conn,
		ch:            ch,
		interval:      interval,
		logger:        logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", "error", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", "error", err)
		}
	}
}

// Run запускает периодический обход и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("sweeper started", slog.Duration("interval", a.interval))
	a.expiryService.SweepExpired(ctx, a.ch)

	for {
		select {
		case <-ticker.C:
			a.expiryService.SweepExpired(ctx, a.ch)
		case <-ctx.Done():
			a.logger.Info("shutting down sweeper")

			if err := a.ch.Close(); err != nil {
				a.logger.Error("failed to close channel", slog.Any("err", err))
			}
			if err := a.conn.Close(); err != nil {
				a.logger.Error("failed to close connection", slog.Any("err", err))
			}
			return nil
		}
	}
}
