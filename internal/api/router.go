package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"urlbox/internal/api/handlers"
	"urlbox/internal/api/middleware"
	apiContext "urlbox/internal/api/context"
	"urlbox/internal/pkg/errors"
	"urlbox/internal/platform/auth"
)

type Dependencies struct {
	WebhookHandler *handlers.WebhookHandler
	RenderHandler  *handlers.RenderHandler
	HealthHandler  *handlers.HealthHandler
	MetricsHandler *handlers.MetricsHandler
	AuthMiddleware *middleware.AuthMiddleware
	RateLimiter    *middleware.RateLimiter
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Route not found", nil)
	})

	router.GET("/healthz", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	// Render callbacks authenticate by signature, not by token.
	router.POST("/webhooks/urlbox",
		chain(deps.WebhookHandler.Receive, deps.RateLimiter.Handle))

	authMid := deps.AuthMiddleware

	router.POST("/api/v1/renders",
		chain(deps.RenderHandler.Create, authMid.Handle, middleware.RequireScope(auth.ScopeRendersWrite)))
	router.GET("/api/v1/renders",
		chain(deps.RenderHandler.List, authMid.Handle, middleware.RequireScope(auth.ScopeRendersRead)))
	router.GET("/api/v1/renders/:render_id",
		chain(deps.RenderHandler.Get, authMid.Handle, middleware.RequireScope(auth.ScopeRendersRead)))
	router.POST("/api/v1/render-urls",
		chain(deps.RenderHandler.GenerateURL, authMid.Handle, middleware.RequireScope(auth.ScopeRendersRead)))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
