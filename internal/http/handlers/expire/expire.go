// Package expire реализует HTTP-обработчик перевода истёкшей подписки в free.
//
// Handler принимает UUID пользователя, валидирует его и вызывает бизнес-логику
// точечного истечения. Неподходящее состояние подписки возвращается как
// отказ not_eligible с текущим состоянием в деталях.
package expire

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
	"github.com/zappod/entitlement-service/internal/services/expiry"
)

// Handler управляет HTTP-запросами на истечение подписки.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики истечения подписки.
type Service interface {
	ExpireIfDue(ctx context.Context, userID string) (*expiry.Result, error)
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
// @Summary Перевести истёкшую подписку в free
// @Description Переводит подписку пользователя в free, если тип из семейства basic и дата окончания прошла.
// @Tags Entitlements
// @Accept  json
// @Produce  json
// @Param request body models.DummyExpireRequest true "UUID пользователя"
// @Success 200 {object} map[string]any "Подписка переведена в free"
// @Failure 404 {object} response.ErrorResponse "Строка подписки не найдена"
// @Failure 409 {object} response.ErrorResponse "Подписка не подлежит истечению"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /entitlements/expire [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.expire"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyExpireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("invalid_request", "Missing user_id"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	res, err := h.service.ExpireIfDue(r.Context(), req.UserID)
	if err != nil {
		log.Error("failed to expire subscription", sl.Err(err))
		status, body := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, body)
		return
	}

	log.Info("success to expire subscription", slog.String("user_id", req.UserID))
	render.JSON(w, r, response.OK(map[string]any{
		"demoted":           res.Demoted,
		"subscription_type": res.SubscriptionType,
		"updated_at":        res.UpdatedAt,
	}))
}
