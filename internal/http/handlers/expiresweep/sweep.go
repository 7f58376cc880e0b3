// Package expiresweep реализует HTTP-обработчик пакетного истечения подписок.
//
// Handler вызывает обход всех типов семейства basic и возвращает число
// переведённых строк по каждому типу. Частичные отказы отдаются в поле errors
// без прерывания обхода.
package expiresweep

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/streadway/amqp"

	"github.com/zappod/entitlement-service/internal/http/response"
	"github.com/zappod/entitlement-service/internal/services/expiry"
)

// Handler управляет HTTP-запросами на пакетное истечение подписок.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики пакетного истечения.
type Service interface {
	SweepExpired(ctx context.Context, ch *amqp.Channel) *expiry.SweepReport
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Пакетно перевести истёкшие подписки в free
// @Description Обходит все типы семейства basic и переводит в free строки с прошедшей датой окончания.
// @Tags Entitlements
// @Produce  json
// @Success 200 {object} map[string]any "Счётчики по типам"
// @Router /entitlements/expire/sweep [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.expiresweep"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	report := h.service.SweepExpired(r.Context(), nil)

	log.Info("sweep finished", slog.Any("counts", report.Counts), slog.Int("errors", len(report.Errors)))
	fields := map[string]any{"counts": report.Counts}
	if len(report.Errors) > 0 {
		fields["errors"] = report.Errors
	}
	render.JSON(w, r, response.OK(fields))
}
