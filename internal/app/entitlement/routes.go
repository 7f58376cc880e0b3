package entitlement

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/zappod/entitlement-service/internal/config"
	"github.com/zappod/entitlement-service/internal/http/handlers/expire"
	"github.com/zappod/entitlement-service/internal/http/handlers/expiresweep"
	"github.com/zappod/entitlement-service/internal/http/handlers/health"
	"github.com/zappod/entitlement-service/internal/http/handlers/redeem"
	"github.com/zappod/entitlement-service/internal/http/handlers/trialfree"
	"github.com/zappod/entitlement-service/internal/http/handlers/verify"
	"github.com/zappod/entitlement-service/internal/http/middlewarectx"
	expiryservice "github.com/zappod/entitlement-service/internal/services/expiry"
	reconcileservice "github.com/zappod/entitlement-service/internal/services/reconcile"
	redemptionservice "github.com/zappod/entitlement-service/internal/services/redemption"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config,
	redemptionService *redemptionservice.Service,
	expiryService *expiryservice.Service,
	reconcileService *reconcileservice.Service,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middlewarectx.RecoverMiddleware(logger),
		middleware.URLFormat,
	)
	r.Use(middlewarectx.CORSMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.New(logger).ServeHTTP)

		// Группа за внутренним секретом edge-прокси
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.InternalSecretMiddleware(cfg.InternalSecret, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/entitlements/redeem", redeem.New(logger, redemptionService).ServeHTTP)
			r.Post("/entitlements/expire", expire.New(logger, expiryService).ServeHTTP)
			r.Post("/entitlements/expire/sweep", expiresweep.New(logger, expiryService).ServeHTTP)
			r.Post("/entitlements/trial-to-free", trialfree.New(logger, expiryService).ServeHTTP)
			r.Post("/entitlements/verify", verify.New(logger, reconcileService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
