package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zappod/entitlement-service/internal/models"
)

func TestStorage_GetPromoCode(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	expiresAt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	maxUsage := 5
	factory.CreatePromoCode(t, "WELCOME30", "press", true, &expiresAt, &maxUsage, 2, 30)

	t.Run("existing code", func(t *testing.T) {
		promo, err := storage.GetPromoCode(context.Background(), "WELCOME30")
		require.NoError(t, err)
		require.NotNil(t, promo)
		assert.Equal(t, "press", promo.Category)
		assert.True(t, promo.IsActive)
		assert.Equal(t, 2, promo.CurrentUsage)
		assert.Equal(t, 30, promo.BonusDays)
		require.NotNil(t, promo.MaxUsage)
		assert.Equal(t, 5, *promo.MaxUsage)
		require.NotNil(t, promo.ExpiresAt)
		assert.True(t, promo.ExpiresAt.Equal(expiresAt))
	})

	t.Run("missing code returns nil without error", func(t *testing.T) {
		promo, err := storage.GetPromoCode(context.Background(), "NOPE")
		require.NoError(t, err)
		assert.Nil(t, promo)
	})
}

func TestStorage_IncrementUsage(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreatePromoCode(t, "COUNTED", "press", true, nil, nil, 0, 7)

	for range 3 {
		require.NoError(t, storage.IncrementUsage(context.Background(), "COUNTED"))
	}

	verification := NewTestVerification(storage)
	verification.VerifyUsage(t, "COUNTED", 3)
}

func TestStorage_InsertRedemption_UniqueViolation(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreatePromoCode(t, "FIRST", "press", true, nil, nil, 0, 30)
	factory.CreatePromoCode(t, "SECOND", "press", true, nil, nil, 0, 30)

	userID := uuid.New().String()
	now := time.Now().UTC()

	err := storage.InsertRedemption(context.Background(), models.Redemption{
		UserID: userID, PromoCode: "FIRST", Category: "press", CreatedAt: now,
	})
	require.NoError(t, err)

	// Вторая попытка той же категории упирается в ограничение уникальности,
	// даже если код другой.
	err = storage.InsertRedemption(context.Background(), models.Redemption{
		UserID: userID, PromoCode: "SECOND", Category: "press", CreatedAt: now,
	})
	require.ErrorIs(t, err, ErrUniqueViolation)

	redeemed, err := storage.FindRedemption(context.Background(), userID, "press")
	require.NoError(t, err)
	assert.True(t, redeemed)
}

func TestStorage_InsertRedemption_TestCategoryRepeats(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreatePromoCode(t, "QA7", "test", true, nil, nil, 0, 7)

	userID := uuid.New().String()
	now := time.Now().UTC()

	for range 2 {
		err := storage.InsertRedemption(context.Background(), models.Redemption{
			UserID: userID, PromoCode: "QA7", Category: "test", CreatedAt: now,
		})
		require.NoError(t, err)
	}
}

func TestStorage_GetEntitlement(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userID := uuid.New().String()
	trialEnd := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	factory.CreateEntitlement(t, userID, models.TypeTrial, false, nil, nil, &trialEnd)

	t.Run("existing row", func(t *testing.T) {
		got, err := storage.GetEntitlement(context.Background(), userID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.TypeTrial, got.SubscriptionType)
		require.NotNil(t, got.TrialEndDate)
		assert.True(t, got.TrialEndDate.Equal(trialEnd))
		assert.Nil(t, got.SubscriptionEndDate)
	})

	t.Run("missing row returns nil without error", func(t *testing.T) {
		got, err := storage.GetEntitlement(context.Background(), uuid.New().String())
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestStorage_ApplyBonus_Upsert(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	userID := uuid.New().String()
	now := time.Now().UTC()
	endDate := now.AddDate(0, 0, 30)

	// Первое применение создает строку.
	require.NoError(t, storage.ApplyBonus(context.Background(), userID, endDate, now))

	verification := NewTestVerification(storage)
	verification.VerifyEntitlement(t, userID, models.TypeBasic, true)

	// Повторное применение обновляет существующую строку.
	laterEnd := endDate.AddDate(0, 0, 14)
	require.NoError(t, storage.ApplyBonus(context.Background(), userID, laterEnd, now))

	got, err := storage.GetEntitlement(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, got.SubscriptionEndDate)
	assert.True(t, got.SubscriptionEndDate.Equal(laterEnd))
}

func TestStorage_SweepExpiredByType(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	now := time.Now().UTC()
	yesterday := now.AddDate(0, 0, -1)
	tomorrow := now.AddDate(0, 0, 1)

	expiredUser := uuid.New().String()
	activeUser := uuid.New().String()
	otherTypeUser := uuid.New().String()
	nullEndUser := uuid.New().String()

	factory.CreateEntitlement(t, expiredUser, models.TypeBasicMonthly, true, nil, &yesterday, nil)
	factory.CreateEntitlement(t, activeUser, models.TypeBasicMonthly, true, nil, &tomorrow, nil)
	factory.CreateEntitlement(t, otherTypeUser, models.TypeBasicYearly, true, nil, &yesterday, nil)
	factory.CreateEntitlement(t, nullEndUser, models.TypeBasicMonthly, true, nil, nil, nil)

	userIDs, err := storage.SweepExpiredByType(context.Background(), models.TypeBasicMonthly, now)
	require.NoError(t, err)
	assert.Equal(t, []string{expiredUser}, userIDs)

	verification := NewTestVerification(storage)
	verification.VerifyEntitlement(t, expiredUser, models.TypeFree, false)
	verification.VerifyEntitlement(t, activeUser, models.TypeBasicMonthly, true)
	verification.VerifyEntitlement(t, otherTypeUser, models.TypeBasicYearly, true)
	verification.VerifyEntitlement(t, nullEndUser, models.TypeBasicMonthly, true)
}

func TestStorage_TransitionTrialToFree(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	now := time.Now().UTC()

	trialUser := uuid.New().String()
	basicUser := uuid.New().String()
	endDate := now.AddDate(0, 0, 10)
	factory.CreateEntitlement(t, trialUser, models.TypeTrial, false, nil, nil, nil)
	factory.CreateEntitlement(t, basicUser, models.TypeBasic, true, nil, &endDate, nil)

	count, err := storage.TransitionTrialToFree(context.Background(), trialUser, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Не trial — строка не меняется.
	count, err = storage.TransitionTrialToFree(context.Background(), basicUser, now)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	verification := NewTestVerification(storage)
	verification.VerifyEntitlement(t, trialUser, models.TypeFree, false)
	verification.VerifyEntitlement(t, basicUser, models.TypeBasic, true)
}

func TestStorage_InsertHistory(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	userID := uuid.New().String()
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -5)
	end := now.AddDate(0, 0, 25)

	err := storage.InsertHistory(context.Background(), models.HistoryEntry{
		UserID:           userID,
		SubscriptionType: models.TypeBasicMonthly,
		StartDate:        &start,
		EndDate:          &end,
		Status:           "active",
		PaymentMethod:    "apple",
		CreatedAt:        now,
	})
	require.NoError(t, err)

	verification := NewTestVerification(storage)
	verification.VerifyHistoryCount(t, userID, 1)
}
