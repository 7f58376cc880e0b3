package middlewarectx

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/zappod/entitlement-service/internal/errs"
	"github.com/zappod/entitlement-service/internal/http/response"
	"github.com/zappod/entitlement-service/internal/lib/sl"
)

// RecoverMiddleware возвращает HTTP middleware, которое перехватывает панику
// обработчика и отдаёт клиенту JSON-ответ server_error вместо пустого тела.
// http.ErrAbortHandler пробрасывается дальше без перехвата.
func RecoverMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				log.Error("panic recovered",
					slog.String("request_id", middleware.GetReqID(r.Context())),
					sl.Err(fmt.Errorf("%v", rec)))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.Error(errs.CodeServerError, fmt.Sprintf("%v", rec)))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
