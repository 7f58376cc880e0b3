// Package identitysync зеркалирует производные поля статуса подписки
// в метаданные пользователя внешнего хранилища учётных записей.
// Синхронизация идемпотентна и необязательна: её отказ никогда не должен
// проваливать породивший её запрос — вызывающая сторона логирует и продолжает.
package identitysync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zappod/entitlement-service/internal/config"
)

// Metadata — производные поля статуса подписки, попадающие в метаданные
// учётной записи.
type Metadata struct {
	SubscriptionType    string     `json:"subscription_type"`
	IsSubscribed        bool       `json:"is_subscribed"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Client клиент административного API хранилища учётных записей.
type Client struct {
	baseURL       string
	serviceSecret string
	tokenTTL      time.Duration
	httpClient    *http.Client
}

// New создаёт новый клиент синхронизации метаданных.
func New(cfg config.IdentitySync) *Client {
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		serviceSecret: cfg.ServiceSecret,
		tokenTTL:      ttl,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SyncUserMetadata выполняет идемпотентный upsert метаданных подписки
// для пользователя. Запрос авторизуется короткоживущим сервисным токеном.
func (c *Client) SyncUserMetadata(ctx context.Context, userID string, meta Metadata) error {
	const op = "identitysync.SyncUserMetadata"

	token, err := c.serviceToken()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	body := map[string]any{"user_metadata": meta}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	url := fmt.Sprintf("%s/admin/users/%s", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, &buf)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s: unexpected status %s", op, resp.Status)
	}
	return nil
}

// serviceToken выпускает короткоживущий HS256-токен с сервисной ролью.
func (c *Client) serviceToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"role": "service_role",
		"iat":  now.Unix(),
		"exp":  now.Add(c.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.serviceSecret))
}
