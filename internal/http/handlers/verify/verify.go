// Package verify реализует HTTP-обработчик сверки чека с процессором платежей.
//
// Handler принимает чек в base64 и UUID пользователя, валидирует их и вызывает
// бизнес-логику сверки. Терминальные статусы протокола проверки отдаются как
// отказы с соответствующими кодами; нечитаемый ответ процессора — как
// apple_no_response 502.
package verify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/zappod/entitlement-service/internal/http/response"
	"github.com/zappod/entitlement-service/internal/lib/sl"
	"github.com/zappod/entitlement-service/internal/models"
	"github.com/zappod/entitlement-service/internal/services/reconcile"
)

// Handler управляет HTTP-запросами на сверку чеков.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики сверки чека.
type Service interface {
	Reconcile(ctx context.Context, receiptData, userID string) (*reconcile.Outcome, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Сверить чек с процессором платежей
// @Description Проверяет чек у процессора и приводит локальный статус подписки к данным чека.
// @Tags Entitlements
// @Accept  json
// @Produce  json
// @Param request body models.DummyVerifyRequest true "Чек в base64 и UUID пользователя"
// @Success 200 {object} map[string]any "Итог сверки"
// @Failure 400 {object} response.ErrorResponse "Чек не прошёл проверку"
// @Failure 401 {object} response.ErrorResponse "Чек не аутентифицирован или секрет не совпал"
// @Failure 410 {object} response.ErrorResponse "Подписка отозвана"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 502 {object} response.ErrorResponse "Процессор недоступен или ответ нечитаем"
// @Router /entitlements/verify [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.verify"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("invalid_request", "Missing receipt_data or user_id"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	outcome, err := h.service.Reconcile(r.Context(), req.ReceiptData, req.UserID)
	if err != nil {
		log.Error("failed to reconcile receipt", sl.Err(err))
		status, body := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, body)
		return
	}

	log.Info("success to reconcile receipt",
		slog.String("user_id", req.UserID),
		slog.String("outcome", outcome.Status))

	fields := map[string]any{
		"outcome":           outcome.Status,
		"subscription_type": outcome.SubscriptionType,
	}
	if outcome.SubscriptionEndDate != nil {
		fields["subscription_end_date"] = outcome.SubscriptionEndDate
	}
	render.JSON(w, r, response.OK(fields))
}
