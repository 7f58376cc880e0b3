package redeem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/zappod/entitlement-service/internal/errs"
	"github.com/zappod/entitlement-service/internal/models"
	"github.com/zappod/entitlement-service/internal/services/redemption"
)

// MockService реализует интерфейс redeem.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Redeem(ctx context.Context, code, userID string) (*redemption.Result, error) {
	args := m.Called(ctx, code, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redemption.Result), args.Error(1)
}

const userID = "2a9f8a6e-7c1d-4b39-9a54-0e5c7d1f3b20"

func TestRedeemHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	endDate := time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:        "успешное погашение промокода",
			requestBody: models.DummyRedeemRequest{Code: "WELCOME30", UserID: userID},
			setupMock: func(m *MockService) {
				m.On("Redeem", mock.Anything, "WELCOME30", userID).
					Return(&redemption.Result{BonusDays: 30, SubscriptionEndDate: endDate}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"bonus_days":30`,
		},
		{
			name:           "некорректный JSON",
			requestBody:    "not a json",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"code":"invalid_request"`,
		},
		{
			name:           "отсутствует code",
			requestBody:    models.DummyRedeemRequest{UserID: userID},
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Code is a required field`,
		},
		{
			name:           "некорректный user_id",
			requestBody:    models.DummyRedeemRequest{Code: "WELCOME30", UserID: "not-a-uuid"},
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field UserID can contain only uuid`,
		},
		{
			name:        "код не найден",
			requestBody: models.DummyRedeemRequest{Code: "NOPE", UserID: userID},
			setupMock: func(m *MockService) {
				m.On("Redeem", mock.Anything, "NOPE", userID).Return(nil, errs.ErrCodeNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"code":"code_not_found"`,
		},
		{
			name:        "код уже погашен",
			requestBody: models.DummyRedeemRequest{Code: "WELCOME30", UserID: userID},
			setupMock: func(m *MockService) {
				m.On("Redeem", mock.Anything, "WELCOME30", userID).Return(nil, errs.ErrAlreadyRedeemed)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `"code":"already_redeemed"`,
		},
		{
			name:        "срок действия кода истёк",
			requestBody: models.DummyRedeemRequest{Code: "OLD", UserID: userID},
			setupMock: func(m *MockService) {
				m.On("Redeem", mock.Anything, "OLD", userID).Return(nil, errs.ErrExpiredCode)
			},
			expectedStatus: http.StatusGone,
			expectedBody:   `"code":"expired_code"`,
		},
		{
			name:        "ошибка сервиса",
			requestBody: models.DummyRedeemRequest{Code: "WELCOME30", UserID: userID},
			setupMock: func(m *MockService) {
				m.On("Redeem", mock.Anything, "WELCOME30", userID).
					Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"code":"server_error"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			var body []byte
			var err error
			if str, ok := tt.requestBody.(string); ok {
				body = []byte(str)
			} else {
				body, err = json.Marshal(tt.requestBody)
				assert.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/entitlements/redeem", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-id"))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)

			mockService.AssertExpectations(t)
		})
	}
}
