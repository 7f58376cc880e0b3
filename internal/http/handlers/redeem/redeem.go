// Package redeem реализует HTTP-обработчик погашения промокода.
//
// Handler принимает JSON-запрос с промокодом и UUID пользователя, валидирует
// их, вызывает бизнес-логику погашения и возвращает размер бонуса и новую
// дату окончания подписки. Бизнес-отказы (код не найден, исчерпан, уже
// погашен) отдаются с соответствующими кодами и HTTP-статусами.
package redeem

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
	"github.com/zappod/entitlement-service/internal/services/redemption"
)

// Handler управляет HTTP-запросами на погашение промокодов.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики погашения промокодов
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики погашения промокода.
type Service interface {
	Redeem(ctx context.Context, code, userID string) (*redemption.Result, error)
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
// @Summary Погасить промокод
// @Description Применяет промокод к подписке пользователя и продлевает её на размер бонуса.
// @Tags Entitlements
// @Accept  json
// @Produce  json
// @Param request body models.DummyRedeemRequest true "Промокод и UUID пользователя"
// @Success 200 {object} map[string]any "Успешное погашение"
// @Failure 404 {object} response.ErrorResponse "Код не найден"
// @Failure 409 {object} response.ErrorResponse "Код неактивен, исчерпан или уже погашен"
// @Failure 410 {object} response.ErrorResponse "Срок действия кода истёк"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /entitlements/redeem [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.redeem"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyRedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("invalid_request", "Missing code or user_id"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	res, err := h.service.Redeem(r.Context(), req.Code, req.UserID)
	if err != nil {
		log.Error("failed to redeem promo code", sl.Err(err))
		status, body := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, body)
		return
	}

	log.Info("success to redeem promo code",
		slog.String("code", req.Code),
		slog.Int("bonus_days", res.BonusDays))
	render.JSON(w, r, response.OK(map[string]any{
		"bonus_days":            res.BonusDays,
		"subscription_end_date": res.SubscriptionEndDate,
	}))
}
