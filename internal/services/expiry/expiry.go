// Package expiry содержит бизнес-логику перевода истёкших подписок в free:
// точечную проверку одного пользователя и пакетный обход по типам подписки.
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/streadway/amqp"

	"github.com/zappod/entitlement-service/internal/cache"
	"github.com/zappod/entitlement-service/internal/errs"
	"github.com/zappod/entitlement-service/internal/identitysync"
	"github.com/zappod/entitlement-service/internal/lib/sl"
	"github.com/zappod/entitlement-service/internal/models"
	"github.com/zappod/entitlement-service/internal/rabbitmq"
)

// Repository определяет методы хранилища, необходимые движку истечения.
type Repository interface {
	GetEntitlement(ctx context.Context, userID string) (*models.Entitlement, error)
	DemoteToFree(ctx context.Context, userID string, now time.Time) (int, error)
	SweepExpiredByType(ctx context.Context, subscriptionType string, now time.Time) ([]string, error)
	TransitionTrialToFree(ctx context.Context, userID string, now time.Time) (int, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Invalidate(key string) error
}

// MetadataSyncer зеркалирует производные поля подписки во внешнее
// хранилище учётных записей.
type MetadataSyncer interface {
	SyncUserMetadata(ctx context.Context, userID string, meta identitysync.Metadata) error
}

// Service реализует движок истечения подписок.
type Service struct {
	repo   Repository
	cache  Cache
	syncer MetadataSyncer // nil, если синхронизация выключена
	log    *slog.Logger
}

// New создает новый Service.
func New(repo Repository, cache Cache, syncer MetadataSyncer, log *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		syncer: syncer,
		log:    log,
	}
}

// Result — итог перевода подписки в free.
type Result struct {
	Demoted          bool
	SubscriptionType string
	UpdatedAt        time.Time
}

// ExpiredEvent — событие о переводе истёкшей подписки в free,
// публикуемое для воркеров уведомлений.
type ExpiredEvent struct {
	UserID           string    `json:"user_id"`
	SubscriptionType string    `json:"subscription_type"`
	DemotedAt        time.Time `json:"demoted_at"`
}

// SweepReport — результат пакетного обхода: число переведённых строк
// по каждому типу и ошибки несработавших типов. Частичный отказ одного
// типа не останавливает обработку остальных.
type SweepReport struct {
	Counts map[string]int `json:"counts"`
	Errors []string       `json:"errors,omitempty"`
}

// ExpireIfDue переводит подписку пользователя в free, если она подлежит
// истечению: тип из семейства basic и дата окончания не позже текущего
// момента. Отсутствующая дата окончания у basic-типа считается уже
// истёкшей. Неподходящее состояние — не ошибка сервера, а ожидаемый
// отказ not_eligible с текущим состоянием в деталях.
func (s *Service) ExpireIfDue(ctx context.Context, userID string) (*Result, error) {
	now := time.Now().UTC()

	current, err := s.repo.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, errs.Fetch("failed to fetch subscription", err)
	}
	if current == nil {
		return nil, errs.ErrNotFound
	}

	subscriptionType := strings.ToLower(current.SubscriptionType)
	isExpired := current.SubscriptionEndDate == nil || !current.SubscriptionEndDate.After(now)
	if !models.IsBasicFamily(subscriptionType) || !isExpired {
		return nil, errs.ErrNotEligible.WithDetails(map[string]any{
			"subscription_type":     subscriptionType,
			"subscription_end_date": current.SubscriptionEndDate,
		})
	}

	count, err := s.repo.DemoteToFree(ctx, userID, now)
	if err != nil {
		return nil, errs.Update("failed to update subscription", err)
	}
	if count == 0 {
		return nil, errs.Update("failed to update subscription", fmt.Errorf("no rows updated for user %s", userID))
	}

	s.log.Info("subscription demoted to free",
		slog.String("user_id", userID),
		slog.String("previous_type", subscriptionType))

	s.invalidate(userID)
	s.syncFree(ctx, userID, now)

	return &Result{Demoted: true, SubscriptionType: models.TypeFree, UpdatedAt: now}, nil
}

// SweepExpired обходит все типы семейства basic и переводит в free строки
// с датой окончания раньше текущего момента. Ошибки собираются по типам,
// обработка не прерывается. Для каждого переведённого пользователя
// публикуется событие в RabbitMQ, если передан канал.
func (s *Service) SweepExpired(ctx context.Context, ch *amqp.Channel) *SweepReport {
	now := time.Now().UTC()
	report := &SweepReport{Counts: make(map[string]int)}

	for _, subscriptionType := range models.BasicFamily() {
		userIDs, err := s.repo.SweepExpiredByType(ctx, subscriptionType, now)
		if err != nil {
			s.log.Error("failed to sweep tier", slog.String("subscription_type", subscriptionType), sl.Err(err))
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", subscriptionType, err))
			continue
		}
		report.Counts[subscriptionType] = len(userIDs)

		for _, userID := range userIDs {
			s.invalidate(userID)
			if ch == nil {
				continue
			}
			event := ExpiredEvent{UserID: userID, SubscriptionType: subscriptionType, DemotedAt: now}
			if err := rabbitmq.PublishMessage(ch, rabbitmq.ExchangeEntitlements, "expired", event); err != nil {
				s.log.Error("failed to publish expired event", slog.String("user_id", userID), sl.Err(err))
			}
		}
	}

	s.log.Info("sweep finished", slog.Any("counts", report.Counts), slog.Int("errors", len(report.Errors)))
	return report
}

// TransitionTrialToFree переводит пользователя с trial на free.
// Условие по текущему типу в хранилище защищает от перезаписи других
// состояний; если строка не изменилась, возвращается not_eligible.
func (s *Service) TransitionTrialToFree(ctx context.Context, userID string) (*Result, error) {
	now := time.Now().UTC()

	count, err := s.repo.TransitionTrialToFree(ctx, userID, now)
	if err != nil {
		return nil, errs.Update("failed to update subscription", err)
	}
	if count == 0 {
		return nil, errs.New(errs.CodeNotEligible, http.StatusConflict, "Transition allowed only for trial subscriptions")
	}

	s.log.Info("trial transitioned to free", slog.String("user_id", userID))

	s.invalidate(userID)
	s.syncFree(ctx, userID, now)

	return &Result{Demoted: true, SubscriptionType: models.TypeFree, UpdatedAt: now}, nil
}

func (s *Service) invalidate(userID string) {
	cacheKey := cache.EntitlementKey(userID)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate cache", slog.String("key", cacheKey), sl.Err(err))
	}
}

// syncFree зеркалирует статус free во внешнее хранилище учётных записей.
// Отказ синхронизации не проваливает породивший её запрос.
func (s *Service) syncFree(ctx context.Context, userID string, now time.Time) {
	if s.syncer == nil {
		return
	}
	meta := identitysync.Metadata{
		SubscriptionType: models.TypeFree,
		IsSubscribed:     false,
		UpdatedAt:        now,
	}
	if err := s.syncer.SyncUserMetadata(ctx, userID, meta); err != nil {
		s.log.Warn("auth metadata update failed", sl.Err(err))
	}
}
