// Package appleclient реализует клиент протокола verifyReceipt App Store:
// отправку чека на проверку и единственный повтор на песочницу при
// ответе 21007 (чек из другого окружения).
package appleclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zappod/entitlement-service/internal/config"
	"github.com/zappod/entitlement-service/internal/errs"
)

// Client клиент проверки чеков App Store.
type Client struct {
	primaryURL   string
	sandboxURL   string
	sharedSecret string
	httpClient   *http.Client
}

// New создаёт новый клиент проверки чеков.
func New(cfg config.AppleVerification) *Client {
	timeout := cfg.TimeoutApple
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		primaryURL:   cfg.PrimaryURL,
		sandboxURL:   cfg.SandboxURL,
		sharedSecret: cfg.SharedSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// VerifyReceipt отправляет чек на проверку. Сначала запрашивается основное
// окружение; если оно отвечает статусом 21007, тот же самый запрос один раз
// повторяется на sandbox. Все прочие статусы возвращаются вызывающей стороне
// без повторов. Ответ без поля status трактуется как недоступность
// процессора (apple_no_response), а не как бизнес-отказ.
func (c *Client) VerifyReceipt(ctx context.Context, receiptData string) (*VerifyResponse, error) {
	payload := VerifyRequest{
		ReceiptData:            receiptData,
		Password:               c.sharedSecret,
		ExcludeOldTransactions: true,
	}

	resp, err := c.post(ctx, c.primaryURL, payload)
	if err != nil {
		return nil, err
	}

	if resp.Status != nil && *resp.Status == StatusSandboxReceipt {
		resp, err = c.post(ctx, c.sandboxURL, payload)
		if err != nil {
			return nil, err
		}
	}

	if resp.Status == nil {
		return nil, errs.ErrAppleNoResponse
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, url string, payload VerifyRequest) (*VerifyResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("failed to encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errs.Error{
			Code:    errs.CodeAppleNoResponse,
			Status:  http.StatusBadGateway,
			Message: "No interpretable response from receipt verification",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	var verifyResp VerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verifyResp); err != nil {
		return nil, &errs.Error{
			Code:    errs.CodeAppleNoResponse,
			Status:  http.StatusBadGateway,
			Message: "No interpretable response from receipt verification",
			Err:     err,
		}
	}
	return &verifyResp, nil
}
