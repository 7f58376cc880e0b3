// Package redemption содержит бизнес-логику погашения промокодов:
// цепочку проверок кода, журнал погашений и продление подписки.
package redemption

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zappod/entitlement-service/internal/cache"
	"github.com/zappod/entitlement-service/internal/errs"
	"github.com/zappod/entitlement-service/internal/identitysync"
	"github.com/zappod/entitlement-service/internal/lib/extend"
	"github.com/zappod/entitlement-service/internal/lib/sl"
	"github.com/zappod/entitlement-service/internal/models"
	"github.com/zappod/entitlement-service/internal/storage/repository"
)

// Repository определяет методы хранилища, необходимые движку погашения.
type Repository interface {
	// GetPromoCode возвращает промокод или (nil, nil), если код не найден.
	GetPromoCode(ctx context.Context, code string) (*models.PromoCode, error)
	// FindRedemption сообщает, гасил ли пользователь код данной категории.
	FindRedemption(ctx context.Context, userID, category string) (bool, error)
	// InsertRedemption добавляет строку журнала погашений.
	InsertRedemption(ctx context.Context, redemption models.Redemption) error
	// IncrementUsage увеличивает счётчик использований кода.
	IncrementUsage(ctx context.Context, code string) error
	// GetEntitlement возвращает статус подписки или (nil, nil) без строки.
	GetEntitlement(ctx context.Context, userID string) (*models.Entitlement, error)
	// ApplyBonus применяет результат погашения к статусу подписки.
	ApplyBonus(ctx context.Context, userID string, newEndDate, now time.Time) error
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// MetadataSyncer зеркалирует производные поля подписки во внешнее
// хранилище учётных записей.
type MetadataSyncer interface {
	SyncUserMetadata(ctx context.Context, userID string, meta identitysync.Metadata) error
}

// Service реализует движок погашения промокодов.
type Service struct {
	repo   Repository
	cache  Cache
	syncer MetadataSyncer // nil, если синхронизация выключена
	log    *slog.Logger
}

// Result — итог успешного погашения.
type Result struct {
	BonusDays           int
	SubscriptionEndDate time.Time
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

// Redeem применяет промокод к подписке пользователя.
//
// Проверки выполняются по порядку, первая неуспешная завершает вызов:
// существование кода, активность, срок действия, лимит использований,
// повторное погашение категории (категория test исключена). Побочные
// эффекты идут последовательно без отката уже зафиксированных шагов:
// строка журнала, инкремент счётчика, upsert статуса подписки. Гонка
// двух параллельных погашений разрешается ограничением уникальности
// журнала и возвращается проигравшему как already_redeemed.
func (s *Service) Redeem(ctx context.Context, code, userID string) (*Result, error) {
	now := time.Now().UTC()

	promo, err := s.repo.GetPromoCode(ctx, code)
	if err != nil {
		return nil, errs.Fetch("failed to fetch promo code", err)
	}
	if promo == nil {
		return nil, errs.ErrCodeNotFound
	}
	if !promo.IsActive {
		return nil, errs.ErrInactiveCode
	}
	if promo.ExpiresAt != nil && promo.ExpiresAt.Before(now) {
		return nil, errs.ErrExpiredCode
	}
	if promo.MaxUsage != nil && promo.CurrentUsage >= *promo.MaxUsage {
		return nil, errs.ErrUsageExhausted
	}

	if promo.Category != models.CategoryTest {
		redeemed, err := s.repo.FindRedemption(ctx, userID, promo.Category)
		if err != nil {
			return nil, errs.Fetch("failed to check redemption", err)
		}
		if redeemed {
			return nil, errs.ErrAlreadyRedeemed
		}
	}

	err = s.repo.InsertRedemption(ctx, models.Redemption{
		UserID:    userID,
		PromoCode: promo.Code,
		Category:  promo.Category,
		CreatedAt: now,
	})
	if err != nil {
		// Ограничение уникальности журнала — источник истины для
		// "уже погашено": проигравший гонку получает тот же отказ.
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, errs.ErrAlreadyRedeemed
		}
		return nil, errs.Update("failed to record redemption", err)
	}

	if err := s.repo.IncrementUsage(ctx, promo.Code); err != nil {
		return nil, errs.Update("failed to update code usage", err)
	}

	current, err := s.currentEntitlement(ctx, userID)
	if err != nil {
		return nil, errs.Fetch("failed to fetch subscription", err)
	}

	subscriptionType := models.TypeFree
	var trialEnd, subscriptionEnd *time.Time
	if current != nil {
		subscriptionType = current.SubscriptionType
		trialEnd = current.TrialEndDate
		subscriptionEnd = current.SubscriptionEndDate
	}

	newEndDate := extend.NewEndDate(subscriptionType, trialEnd, subscriptionEnd, promo.BonusDays, now)

	if err := s.repo.ApplyBonus(ctx, userID, newEndDate, now); err != nil {
		return nil, errs.Update("failed to upsert subscription", err)
	}

	s.log.Info("promo code redeemed",
		slog.String("code", promo.Code),
		slog.Int("bonus_days", promo.BonusDays),
		slog.Time("new_end_date", newEndDate))

	cacheKey := cache.EntitlementKey(userID)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate cache", slog.String("key", cacheKey), sl.Err(err))
	}

	s.syncMetadata(ctx, userID, newEndDate, now)

	return &Result{
		BonusDays:           promo.BonusDays,
		SubscriptionEndDate: newEndDate,
	}, nil
}

// currentEntitlement читает статус подписки через кэш.
func (s *Service) currentEntitlement(ctx context.Context, userID string) (*models.Entitlement, error) {
	var result *models.Entitlement
	cacheKey := cache.EntitlementKey(userID)
	found, err := s.cache.Get(cacheKey, &result)
	if err != nil {
		s.log.Warn("failed to read from cache", slog.String("key", cacheKey), sl.Err(err))
	}
	if found {
		return result, nil
	}

	result, err = s.repo.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}
	if result != nil {
		if err := s.cache.Set(cacheKey, result, time.Hour); err != nil {
			s.log.Warn("failed to add to cache", slog.String("key", cacheKey), sl.Err(err))
		}
	}
	return result, nil
}

// syncMetadata зеркалирует новые поля подписки во внешнее хранилище
// учётных записей. Отказ синхронизации не проваливает погашение.
func (s *Service) syncMetadata(ctx context.Context, userID string, endDate, now time.Time) {
	if s.syncer == nil {
		return
	}
	meta := identitysync.Metadata{
		SubscriptionType:    models.TypeBasic,
		IsSubscribed:        true,
		SubscriptionEndDate: &endDate,
		UpdatedAt:           now,
	}
	if err := s.syncer.SyncUserMetadata(ctx, userID, meta); err != nil {
		s.log.Warn("auth metadata update failed", sl.Err(err))
	}
}
