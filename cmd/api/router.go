package main

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/boibabu/api/internal/di"
	"github.com/boibabu/api/internal/handlers"
	"github.com/boibabu/api/internal/platform/auth"
	"github.com/boibabu/api/internal/platform/config"
	"github.com/boibabu/api/internal/platform/idempotency"
	"github.com/boibabu/api/internal/platform/observability"
	"github.com/boibabu/api/internal/services"
)

const internalAudienceKey = "internal"

type routerDeps struct {
	logger        *zap.Logger
	cfg           config.Config
	build         services.BuildInfo
	services      di.Services
	authenticator *auth.Authenticator
	idempotency   idempotency.Store
}

func newRouter(d routerDeps) http.Handler {
	httpLogger := d.logger.Named("http")
	projectID := traceProjectID(d.cfg)
	svc := d.services

	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(projectID),
			idempotency.Middleware(d.idempotency,
				idempotency.WithHeader(d.cfg.Idempotency.Header),
				idempotency.WithTTL(d.cfg.Idempotency.TTL),
				idempotency.WithSkipPrefixes(handlers.APIPrefix+"/webhooks", handlers.APIPrefix+"/internal"),
				idempotency.WithLogger(d.logger.Named("idempotency")),
			),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(d.build),
			handlers.WithHealthSystemService(svc.System),
		)),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(d.authenticator, svc.Orders).Routes),
		handlers.WithSellerRoutes(handlers.NewSellerHandlers(d.authenticator, svc.Orders, svc.Statements).Routes),
		handlers.WithAdminRoutes(handlers.NewAdminHandlers(handlers.AdminDeps{
			Authenticator: d.authenticator,
			Orders:        svc.Orders,
			Settings:      svc.Settings,
			Statements:    svc.Statements,
		}).Routes),
		handlers.WithWebhookRoutes(handlers.NewPaymentWebhookHandlers(svc.Orders).Routes),
		handlers.WithInternalRoutes(handlers.NewInternalNotificationHandlers(svc.Notifications).Routes),
	}
	if push := pushAuthMiddleware(d.logger.Named("auth"), d.cfg.Security.OIDC); push != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(push))
	}
	return handlers.NewRouter(opts...)
}

// pushAuthMiddleware verifies the Google-signed OIDC token Pub/Sub attaches to push deliveries.
func pushAuthMiddleware(logger *zap.Logger, oidc config.OIDCConfig) func(http.Handler) http.Handler {
	if strings.TrimSpace(oidc.JWKSURL) == "" {
		return nil
	}
	policy := auth.OIDCPolicy{
		Audience:        internalAudience(oidc),
		Issuers:         oidc.Issuers,
		ServiceAccounts: oidc.ServiceAccounts,
	}
	if policy.Audience == "" {
		logger.Warn("OIDC audience not configured; internal routes will reject requests")
	}
	if len(policy.ServiceAccounts) == 0 {
		logger.Warn("no push service accounts configured; any Google-signed caller is accepted")
	}
	cache := auth.NewJWKSCache(oidc.JWKSURL, auth.WithJWKSLogger(logger))
	return auth.NewOIDCValidator(cache, logger).RequireOIDC(policy)
}

// internalAudience prefers the audience mapped to the internal route group.
func internalAudience(oidc config.OIDCConfig) string {
	if audience := strings.TrimSpace(oidc.Audiences[internalAudienceKey]); audience != "" {
		return audience
	}
	return strings.TrimSpace(oidc.Audience)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
