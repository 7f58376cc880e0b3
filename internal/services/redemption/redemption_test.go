package redemption

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/zappod/entitlement-service/internal/errs"
	"github.com/zappod/entitlement-service/internal/identitysync"
	"github.com/zappod/entitlement-service/internal/models"
	"github.com/zappod/entitlement-service/internal/storage/repository"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetPromoCode(ctx context.Context, code string) (*models.PromoCode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PromoCode), args.Error(1)
}
func (m *RepoMock) FindRedemption(ctx context.Context, userID, category string) (bool, error) {
	args := m.Called(ctx, userID, category)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) InsertRedemption(ctx context.Context, redemption models.Redemption) error {
	return m.Called(ctx, redemption).Error(0)
}
func (m *RepoMock) IncrementUsage(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}
func (m *RepoMock) GetEntitlement(ctx context.Context, userID string) (*models.Entitlement, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entitlement), args.Error(1)
}
func (m *RepoMock) ApplyBonus(ctx context.Context, userID string, newEndDate, now time.Time) error {
	return m.Called(ctx, userID, newEndDate, now).Error(0)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}
func (m *CacheMock) Set(key string, value any, expiration time.Duration) error {
	return m.Called(key, value, expiration).Error(0)
}
func (m *CacheMock) Invalidate(key string) error {
	return m.Called(key).Error(0)
}

type SyncerMock struct{ mock.Mock }

func (m *SyncerMock) SyncUserMetadata(ctx context.Context, userID string, meta identitysync.Metadata) error {
	return m.Called(ctx, userID, meta).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func intPtr(v int) *int { return &v }

func timePtr(v time.Time) *time.Time { return &v }

const userID = "2a9f8a6e-7c1d-4b39-9a54-0e5c7d1f3b20"

func TestRedemptionService_Redeem_ValidationChain(t *testing.T) {
	now := time.Now().UTC()
	future := now.AddDate(0, 1, 0)
	past := now.AddDate(0, -1, 0)

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock, c *CacheMock)
		wantCode   string
	}{
		{
			name: "code not found",
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("GetPromoCode", mock.Anything, "NOPE").Return(nil, nil).Once()
			},
			wantCode: errs.CodeCodeNotFound,
		},
		{
			name: "inactive code",
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("GetPromoCode", mock.Anything, "NOPE").Return(&models.PromoCode{
					Code: "NOPE", Category: "press", IsActive: false, BonusDays: 30,
				}, nil).Once()
			},
			wantCode: errs.CodeInactiveCode,
		},
		{
			name: "expired code",
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("GetPromoCode", mock.Anything, "NOPE").Return(&models.PromoCode{
					Code: "NOPE", Category: "press", IsActive: true, ExpiresAt: timePtr(past), BonusDays: 30,
				}, nil).Once()
			},
			wantCode: errs.CodeExpiredCode,
		},
		{
			name: "usage exhausted before any writes",
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("GetPromoCode", mock.Anything, "NOPE").Return(&models.PromoCode{
					Code: "NOPE", Category: "press", IsActive: true, ExpiresAt: timePtr(future),
					MaxUsage: intPtr(5), CurrentUsage: 5, BonusDays: 30,
				}, nil).Once()
			},
			wantCode: errs.CodeUsageExhausted,
		},
		{
			name: "already redeemed category",
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("GetPromoCode", mock.Anything, "NOPE").Return(&models.PromoCode{
					Code: "NOPE", Category: "press", IsActive: true, BonusDays: 30,
				}, nil).Once()
				r.On("FindRedemption", mock.Anything, userID, "press").Return(true, nil).Once()
			},
			wantCode: errs.CodeAlreadyRedeemed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			cache := new(CacheMock)
			svc := New(repo, cache, nil, newNoopLogger())

			tt.setupMocks(repo, cache)

			res, err := svc.Redeem(context.Background(), "NOPE", userID)
			assert.Nil(t, res)

			var coded *errs.Error
			assert.ErrorAs(t, err, &coded)
			assert.Equal(t, tt.wantCode, coded.Code)

			repo.AssertExpectations(t)
			repo.AssertNotCalled(t, "InsertRedemption", mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "IncrementUsage", mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "ApplyBonus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			cache.AssertExpectations(t)
		})
	}
}

func TestRedemptionService_Redeem_TrialExtendsFromTrialEnd(t *testing.T) {
	trialEnd := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC).AddDate(0, 0, 30)

	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := New(repo, cache, nil, newNoopLogger())

	cacheKey := "entitlement:" + userID

	repo.On("GetPromoCode", mock.Anything, "WELCOME30").Return(&models.PromoCode{
		Code: "WELCOME30", Category: "press", IsActive: true, BonusDays: 30,
	}, nil).Once()
	repo.On("FindRedemption", mock.Anything, userID, "press").Return(false, nil).Once()
	repo.On("InsertRedemption", mock.Anything, mock.MatchedBy(func(red models.Redemption) bool {
		return red.UserID == userID && red.PromoCode == "WELCOME30" && red.Category == "press"
	})).Return(nil).Once()
	repo.On("IncrementUsage", mock.Anything, "WELCOME30").Return(nil).Once()

	entitlement := &models.Entitlement{
		UserID:           userID,
		SubscriptionType: models.TypeTrial,
		TrialEndDate:     &trialEnd,
	}
	cache.On("Get", cacheKey, mock.Anything).Return(false, nil).Once()
	repo.On("GetEntitlement", mock.Anything, userID).Return(entitlement, nil).Once()
	cache.On("Set", cacheKey, entitlement, time.Hour).Return(nil).Once()

	repo.On("ApplyBonus", mock.Anything, userID, wantEnd, mock.Anything).Return(nil).Once()
	cache.On("Invalidate", cacheKey).Return(nil).Once()

	res, err := svc.Redeem(context.Background(), "WELCOME30", userID)
	assert.NoError(t, err)
	assert.Equal(t, 30, res.BonusDays)
	assert.Equal(t, wantEnd, res.SubscriptionEndDate)

	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestRedemptionService_Redeem_NilMaxUsageNeverExhausted(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := New(repo, cache, nil, newNoopLogger())

	cacheKey := "entitlement:" + userID

	repo.On("GetPromoCode", mock.Anything, "OPEN").Return(&models.PromoCode{
		Code: "OPEN", Category: "press", IsActive: true,
		MaxUsage: nil, CurrentUsage: 100500, BonusDays: 7,
	}, nil).Once()
	repo.On("FindRedemption", mock.Anything, userID, "press").Return(false, nil).Once()
	repo.On("InsertRedemption", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("IncrementUsage", mock.Anything, "OPEN").Return(nil).Once()
	cache.On("Get", cacheKey, mock.Anything).Return(false, nil).Once()
	repo.On("GetEntitlement", mock.Anything, userID).Return(nil, nil).Once()
	repo.On("ApplyBonus", mock.Anything, userID, mock.Anything, mock.Anything).Return(nil).Once()
	cache.On("Invalidate", cacheKey).Return(nil).Once()

	res, err := svc.Redeem(context.Background(), "OPEN", userID)
	assert.NoError(t, err)
	assert.Equal(t, 7, res.BonusDays)

	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestRedemptionService_Redeem_TestCategorySkipsLedgerCheck(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := New(repo, cache, nil, newNoopLogger())

	cacheKey := "entitlement:" + userID

	repo.On("GetPromoCode", mock.Anything, "QA7").Return(&models.PromoCode{
		Code: "QA7", Category: models.CategoryTest, IsActive: true, BonusDays: 7,
	}, nil).Once()
	repo.On("InsertRedemption", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("IncrementUsage", mock.Anything, "QA7").Return(nil).Once()
	cache.On("Get", cacheKey, mock.Anything).Return(false, nil).Once()
	repo.On("GetEntitlement", mock.Anything, userID).Return(nil, nil).Once()
	repo.On("ApplyBonus", mock.Anything, userID, mock.Anything, mock.Anything).Return(nil).Once()
	cache.On("Invalidate", cacheKey).Return(nil).Once()

	_, err := svc.Redeem(context.Background(), "QA7", userID)
	assert.NoError(t, err)

	repo.AssertNotCalled(t, "FindRedemption", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestRedemptionService_Redeem_UniqueViolationMapsToAlreadyRedeemed(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := New(repo, cache, nil, newNoopLogger())

	repo.On("GetPromoCode", mock.Anything, "RACE").Return(&models.PromoCode{
		Code: "RACE", Category: "press", IsActive: true, BonusDays: 30,
	}, nil).Once()
	repo.On("FindRedemption", mock.Anything, userID, "press").Return(false, nil).Once()
	repo.On("InsertRedemption", mock.Anything, mock.Anything).
		Return(repository.ErrUniqueViolation).Once()

	res, err := svc.Redeem(context.Background(), "RACE", userID)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, errs.ErrAlreadyRedeemed)

	repo.AssertNotCalled(t, "IncrementUsage", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "ApplyBonus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestRedemptionService_Redeem_CacheHitSkipsRepoRead(t *testing.T) {
	subscriptionEnd := time.Now().UTC().AddDate(0, 0, 10).Truncate(time.Second)
	wantEnd := subscriptionEnd.AddDate(0, 0, 14)

	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := New(repo, cache, nil, newNoopLogger())

	cacheKey := "entitlement:" + userID
	entitlement := &models.Entitlement{
		UserID:              userID,
		SubscriptionType:    models.TypeBasicMonthly,
		IsSubscribed:        true,
		SubscriptionEndDate: &subscriptionEnd,
	}

	repo.On("GetPromoCode", mock.Anything, "PLUS14").Return(&models.PromoCode{
		Code: "PLUS14", Category: "loyalty", IsActive: true, BonusDays: 14,
	}, nil).Once()
	repo.On("FindRedemption", mock.Anything, userID, "loyalty").Return(false, nil).Once()
	repo.On("InsertRedemption", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("IncrementUsage", mock.Anything, "PLUS14").Return(nil).Once()
	cache.On("Get", cacheKey, mock.Anything).Return(true, nil).Run(func(args mock.Arguments) {
		ptrPtr := args.Get(1).(**models.Entitlement)
		*ptrPtr = entitlement
	}).Once()
	repo.On("ApplyBonus", mock.Anything, userID, wantEnd, mock.Anything).Return(nil).Once()
	cache.On("Invalidate", cacheKey).Return(nil).Once()

	res, err := svc.Redeem(context.Background(), "PLUS14", userID)
	assert.NoError(t, err)
	assert.Equal(t, wantEnd, res.SubscriptionEndDate)

	repo.AssertNotCalled(t, "GetEntitlement", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestRedemptionService_Redeem_SyncFailureDoesNotFailRedeem(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	syncer := new(SyncerMock)
	svc := New(repo, cache, syncer, newNoopLogger())

	cacheKey := "entitlement:" + userID

	repo.On("GetPromoCode", mock.Anything, "SYNCED").Return(&models.PromoCode{
		Code: "SYNCED", Category: "press", IsActive: true, BonusDays: 30,
	}, nil).Once()
	repo.On("FindRedemption", mock.Anything, userID, "press").Return(false, nil).Once()
	repo.On("InsertRedemption", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("IncrementUsage", mock.Anything, "SYNCED").Return(nil).Once()
	cache.On("Get", cacheKey, mock.Anything).Return(false, nil).Once()
	repo.On("GetEntitlement", mock.Anything, userID).Return(nil, nil).Once()
	repo.On("ApplyBonus", mock.Anything, userID, mock.Anything, mock.Anything).Return(nil).Once()
	cache.On("Invalidate", cacheKey).Return(errors.New("redis down")).Once()
	syncer.On("SyncUserMetadata", mock.Anything, userID, mock.MatchedBy(func(meta identitysync.Metadata) bool {
		return meta.SubscriptionType == models.TypeBasic && meta.IsSubscribed
	})).Return(errors.New("auth api down")).Once()

	res, err := svc.Redeem(context.Background(), "SYNCED", userID)
	assert.NoError(t, err)
	assert.Equal(t, 30, res.BonusDays)

	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
	syncer.AssertExpectations(t)
}
