// Package trialfree реализует HTTP-обработчик перевода пользователя с trial на free.
package trialfree

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

// Handler управляет HTTP-запросами на перевод trial в free.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики перевода trial в free.
type Service interface {
	TransitionTrialToFree(ctx context.Context, userID string) (*expiry.Result, error)
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
// @Summary Перевести пользователя с trial на free
// @Description Условное обновление: срабатывает только если текущий тип подписки trial.
// @Tags Entitlements
// @Accept  json
// @Produce  json
// @Param request body models.DummyExpireRequest true "UUID пользователя"
// @Success 200 {object} map[string]any "Подписка переведена в free"
// @Failure 409 {object} response.ErrorResponse "Пользователь не на trial"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /entitlements/trial-to-free [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.trialfree"
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

	res, err := h.service.TransitionTrialToFree(r.Context(), req.UserID)
	if err != nil {
		log.Error("failed to transition trial to free", sl.Err(err))
		status, body := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, body)
		return
	}

	log.Info("success to transition trial to free", slog.String("user_id", req.UserID))
	render.JSON(w, r, response.OK(map[string]any{
		"demoted":           res.Demoted,
		"subscription_type": res.SubscriptionType,
		"updated_at":        res.UpdatedAt,
	}))
}
