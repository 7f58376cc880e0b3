package middlewarectx

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/zappod/entitlement-service/internal/errs"
	"github.com/zappod/entitlement-service/internal/http/response"
)

// HeaderInternalSecret — заголовок внутреннего секрета от edge-прокси.
const HeaderInternalSecret = "X-Internal-Secret"

// InternalSecretMiddleware возвращает HTTP middleware, которое проверяет
// заголовок X-Internal-Secret до бизнес-логики. Пустой настроенный секрет
// отключает проверку. Сравнение постоянное по времени.
func InternalSecretMiddleware(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get(HeaderInternalSecret)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				log.Error("internal secret mismatch",
					slog.String("request_id", middleware.GetReqID(r.Context())))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error(errs.CodeUnauthorized, "unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
