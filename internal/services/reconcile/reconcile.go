// Package reconcile содержит бизнес-логику сверки локального статуса подписки
// с данными чека внешнего процессора платежей: интерпретацию статусов
// протокола, выбор актуальной транзакции и запись результата в статус
// подписки и историю.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/zappod/entitlement-service/internal/appleclient"
	"github.com/zappod/entitlement-service/internal/cache"
	"github.com/zappod/entitlement-service/internal/errs"
	"github.com/zappod/entitlement-service/internal/identitysync"
	"github.com/zappod/entitlement-service/internal/lib/sl"
	"github.com/zappod/entitlement-service/internal/models"
)

// Исходы сверки.
const (
	OutcomeNoActiveTransactions = "no_active_transactions"
	OutcomeExpired              = "expired"
	OutcomeActive               = "active"
)

// Идентификаторы продуктов процессора и их типы подписки.
const (
	productBasicMonthly = "zappod_basic_plan"
	productBasicYearly  = "zappod_yearly_basic_plan"
)

const paymentMethodApple = "apple"

// Repository определяет методы хранилища, необходимые движку сверки.
type Repository interface {
	UpsertFree(ctx context.Context, userID string, now time.Time) error
	ApplyPurchase(ctx context.Context, userID, subscriptionType string, startDate, endDate, now time.Time) error
	InsertHistory(ctx context.Context, entry models.HistoryEntry) error
}

// Verifier проверяет чек у внешнего процессора. Ответ без поля status
// допустим и трактуется движком как apple_no_response.
type Verifier interface {
	VerifyReceipt(ctx context.Context, receiptData string) (*appleclient.VerifyResponse, error)
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

// Service реализует движок сверки чеков.
type Service struct {
	repo     Repository
	verifier Verifier
	cache    Cache
	syncer   MetadataSyncer // nil, если синхронизация выключена
	log      *slog.Logger
}

// Outcome — итог сверки.
type Outcome struct {
	Status              string
	SubscriptionType    string
	SubscriptionEndDate *time.Time
}

// New создает новый Service.
func New(repo Repository, verifier Verifier, cache Cache, syncer MetadataSyncer, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		verifier: verifier,
		cache:    cache,
		syncer:   syncer,
		log:      log,
	}
}

// Reconcile сверяет статус подписки пользователя с чеком процессора.
//
// Ненулевые статусы протокола терминальны и отображаются в коды ошибок;
// повтор выполняется только внутри клиента для чека из другого окружения.
// При успехе выбирается транзакция с максимальной датой окончания
// (при равенстве — с максимальной датой покупки); пустой список или
// истёкшая транзакция переводят пользователя в free без записи в историю.
// История пополняется только для подтверждённых активных покупок.
func (s *Service) Reconcile(ctx context.Context, receiptData, userID string) (*Outcome, error) {
	now := time.Now().UTC()

	resp, err := s.verifier.VerifyReceipt(ctx, receiptData)
	if err != nil {
		var coded *errs.Error
		if errors.As(err, &coded) {
			return nil, coded
		}
		return nil, &errs.Error{
			Code:    errs.CodeAppleNoResponse,
			Status:  errs.ErrAppleNoResponse.Status,
			Message: errs.ErrAppleNoResponse.Message,
			Err:     err,
		}
	}

	if resp.Status == nil {
		return nil, errs.ErrAppleNoResponse
	}
	if status := *resp.Status; status != appleclient.StatusOK {
		return nil, mapStatus(status)
	}

	latest := pickLatest(resp.Transactions())
	if latest == nil {
		if err := s.demote(ctx, userID, now); err != nil {
			return nil, err
		}
		return &Outcome{Status: OutcomeNoActiveTransactions, SubscriptionType: models.TypeFree}, nil
	}

	expiresAt := msToTime(latest.ExpiresDateMS)
	if !expiresAt.After(now) {
		if err := s.demote(ctx, userID, now); err != nil {
			return nil, err
		}
		return &Outcome{Status: OutcomeExpired, SubscriptionType: models.TypeFree}, nil
	}

	subscriptionType := mapProductID(latest.ProductID)
	startDate := msToTime(latest.PurchaseDateMS)

	if err := s.repo.ApplyPurchase(ctx, userID, subscriptionType, startDate, expiresAt, now); err != nil {
		return nil, errs.Update("failed to upsert subscription", err)
	}
	if err := s.repo.InsertHistory(ctx, models.HistoryEntry{
		UserID:           userID,
		SubscriptionType: subscriptionType,
		StartDate:        &startDate,
		EndDate:          &expiresAt,
		Status:           OutcomeActive,
		PaymentMethod:    paymentMethodApple,
		CreatedAt:        now,
	}); err != nil {
		return nil, errs.Update("failed to insert history", err)
	}

	s.log.Info("subscription reconciled",
		slog.String("user_id", userID),
		slog.String("subscription_type", subscriptionType),
		slog.Time("end_date", expiresAt))

	s.invalidate(userID)
	s.syncMetadata(ctx, userID, subscriptionType, true, &expiresAt, now)

	return &Outcome{
		Status:              OutcomeActive,
		SubscriptionType:    subscriptionType,
		SubscriptionEndDate: &expiresAt,
	}, nil
}

// demote переводит пользователя в free без записи в историю.
func (s *Service) demote(ctx context.Context, userID string, now time.Time) error {
	if err := s.repo.UpsertFree(ctx, userID, now); err != nil {
		return errs.Update("failed to upsert subscription", err)
	}
	s.invalidate(userID)
	s.syncMetadata(ctx, userID, models.TypeFree, false, nil, now)
	return nil
}

func (s *Service) invalidate(userID string) {
	cacheKey := cache.EntitlementKey(userID)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate cache", slog.String("key", cacheKey), sl.Err(err))
	}
}

func (s *Service) syncMetadata(ctx context.Context, userID, subscriptionType string, isSubscribed bool, endDate *time.Time, now time.Time) {
	if s.syncer == nil {
		return
	}
	meta := identitysync.Metadata{
		SubscriptionType:    subscriptionType,
		IsSubscribed:        isSubscribed,
		SubscriptionEndDate: endDate,
		UpdatedAt:           now,
	}
	if err := s.syncer.SyncUserMetadata(ctx, userID, meta); err != nil {
		s.log.Warn("auth metadata update failed", sl.Err(err))
	}
}

// pickLatest выбирает транзакцию с максимальной датой окончания; при
// равенстве побеждает более поздняя дата покупки.
func pickLatest(entries []appleclient.ReceiptInfo) *appleclient.ReceiptInfo {
	var best *appleclient.ReceiptInfo
	var bestExpires, bestPurchase int64
	for i := range entries {
		expires := msToInt(entries[i].ExpiresDateMS)
		purchase := msToInt(entries[i].PurchaseDateMS)
		if best == nil || expires > bestExpires ||
			(expires == bestExpires && purchase > bestPurchase) {
			best = &entries[i]
			bestExpires = expires
			bestPurchase = purchase
		}
	}
	return best
}

// mapProductID отображает идентификатор продукта процессора в тип подписки.
// Неизвестные продукты считаются обычным basic.
func mapProductID(productID string) string {
	switch productID {
	case productBasicMonthly:
		return models.TypeBasicMonthly
	case productBasicYearly:
		return models.TypeBasicYearly
	default:
		return models.TypeBasic
	}
}

// mapStatus отображает терминальный статус протокола в код ошибки.
func mapStatus(status int) *errs.Error {
	switch {
	case status == appleclient.StatusUnauthenticated:
		return errs.ErrReceiptAuth
	case status == appleclient.StatusBadSharedSecret:
		return errs.ErrBadSharedSecret
	case status == appleclient.StatusServerUnavailable:
		return errs.ErrAppleUnavailable
	case status == appleclient.StatusInternalError || (status >= 21100 && status <= 21199):
		return errs.ErrAppleInternal
	case status == appleclient.StatusAccountNotFound:
		return errs.ErrReceiptRevoked
	default:
		return errs.ErrReceiptInvalid.WithDetails(map[string]any{"status": status})
	}
}

func msToInt(ms string) int64 {
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func msToTime(ms string) time.Time {
	return time.UnixMilli(msToInt(ms)).UTC()
}
