package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreatePromoCode создает тестовый промокод
func (f *TestDataFactory) CreatePromoCode(t *testing.T, code, category string, isActive bool,
	expiresAt *time.Time, maxUsage *int, currentUsage, bonusDays int) {
	_, err := f.storage.DB.Exec(`INSERT INTO promo_codes
		(code, category, is_active, expires_at, max_usage, current_usage, bonus_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		code, category, isActive, expiresAt, maxUsage, currentUsage, bonusDays)
	require.NoError(t, err)
}

// CreateEntitlement создает тестовую строку статуса подписки
func (f *TestDataFactory) CreateEntitlement(t *testing.T, userID, subscriptionType string,
	isSubscribed bool, startDate, endDate, trialEndDate *time.Time) {
	_, err := f.storage.DB.Exec(`INSERT INTO user_subscription_status
		(user_id, subscription_type, is_subscribed, subscription_start_date,
		 subscription_end_date, trial_end_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		userID, subscriptionType, isSubscribed, startDate, endDate, trialEndDate)
	require.NoError(t, err)
}

// TestVerification содержит общие функции для проверки результатов тестов
type TestVerification struct {
	storage *Storage
}

// NewTestVerification создает новый объект для проверки результатов
func NewTestVerification(storage *Storage) *TestVerification {
	return &TestVerification{storage: storage}
}

// VerifyEntitlement проверяет тип и признак активности подписки пользователя
func (v *TestVerification) VerifyEntitlement(t *testing.T, userID, expectedType string, expectedSubscribed bool) {
	var subscriptionType string
	var isSubscribed bool
	err := v.storage.DB.QueryRow(
		"SELECT subscription_type, is_subscribed FROM user_subscription_status WHERE user_id = $1", userID).
		Scan(&subscriptionType, &isSubscribed)
	require.NoError(t, err)
	require.Equal(t, expectedType, subscriptionType)
	require.Equal(t, expectedSubscribed, isSubscribed)
}

// VerifyUsage проверяет счётчик использований промокода
func (v *TestVerification) VerifyUsage(t *testing.T, code string, expectedUsage int) {
	var usage int
	err := v.storage.DB.QueryRow("SELECT current_usage FROM promo_codes WHERE code = $1", code).Scan(&usage)
	require.NoError(t, err)
	require.Equal(t, expectedUsage, usage)
}

// VerifyHistoryCount проверяет число записей истории пользователя
func (v *TestVerification) VerifyHistoryCount(t *testing.T, userID string, expectedCount int) {
	var count int
	err := v.storage.DB.QueryRow("SELECT COUNT(*) FROM subscription_history WHERE user_id = $1", userID).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, expectedCount, count)
}

// setupTestDatabase создает тестовую БД с контейнером PostgreSQL
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	if os.Getenv("SKIP_POSTGRES_TESTS") == "true" {
		t.Skip("Skipping PostgreSQL tests in CI")
	}

	ctx := context.Background()

	postgresContainer, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(3*time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	host, err := postgresContainer.Host(ctx)
	require.NoError(t, err, "failed to get host")
	port, err := postgresContainer.MappedPort(ctx, nat.Port("5432/tcp"))
	require.NoError(t, err, "failed to get port")

	connStr := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	// Пробуем подключиться несколько раз с ретраями
	var storage *Storage
	for range 10 {
		storage, err = New(connStr)
		if err == nil {
			err = storage.DB.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	require.NoError(t, err, "failed to create storage after retries")

	_, err = storage.DB.Exec(`
        CREATE TABLE user_subscription_status (
            user_id UUID PRIMARY KEY,
            subscription_type TEXT NOT NULL DEFAULT 'free',
            is_subscribed BOOLEAN NOT NULL DEFAULT FALSE,
            subscription_start_date TIMESTAMPTZ,
            subscription_end_date TIMESTAMPTZ,
            trial_end_date TIMESTAMPTZ,
            bonus_end_date TIMESTAMPTZ,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        );

        CREATE TABLE promo_codes (
            code TEXT PRIMARY KEY,
            category TEXT NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            expires_at TIMESTAMPTZ,
            max_usage INTEGER,
            current_usage INTEGER NOT NULL DEFAULT 0,
            bonus_days INTEGER NOT NULL DEFAULT 0 CHECK (bonus_days >= 0)
        );

        CREATE TABLE promo_redemptions (
            id BIGSERIAL PRIMARY KEY,
            user_id UUID NOT NULL,
            promo_code TEXT NOT NULL REFERENCES promo_codes (code),
            category TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        );

        CREATE UNIQUE INDEX uq_promo_redemptions_user_category
            ON promo_redemptions (user_id, category)
            WHERE category <> 'test';

        CREATE TABLE subscription_history (
            id BIGSERIAL PRIMARY KEY,
            user_id UUID NOT NULL,
            subscription_type TEXT NOT NULL,
            start_date TIMESTAMPTZ,
            end_date TIMESTAMPTZ,
            status TEXT NOT NULL,
            payment_method TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        );
    `)
	require.NoError(t, err, "failed to create tables")

	cleanup := func() {
		_ = storage.DB.Close()
		_ = postgresContainer.Terminate(ctx)
	}
	return storage, cleanup
}
