// Package middlewarectx содержит HTTP middleware сервиса: CORS c ответом
// на preflight, проверку внутреннего секрета и ограничение частоты запросов.
package middlewarectx

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/zappod/entitlement-service/internal/http/response"
)

// CORSMiddleware выставляет заголовки CORS и отвечает на preflight-запросы.
// OPTIONS завершается сразу пустым успешным ответом, не доходя до
// проверки секрета и бизнес-логики.
func CORSMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Internal-Secret")

			if r.Method == http.MethodOptions {
				render.JSON(w, r, response.OK(nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
