package main

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"docspace-api/internal/auth"
	"docspace-api/internal/config"
	"docspace-api/internal/http/docs"
	"docspace-api/internal/http/handler"
	"docspace-api/internal/http/middleware"
	"docspace-api/internal/observability/logger"
	"docspace-api/internal/ratelimit"
	"docspace-api/internal/repo"
	"docspace-api/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterDeps contém as dependências necessárias para construir o router.
type RouterDeps struct {
	Cfg             *config.Config
	Log             *logger.Logger
	Resolver        *auth.KeyResolver
	S2SStore        *auth.S2STokenStore
	IdempotencyRepo *repo.IdempotencyRepo
	RateLimiter     *ratelimit.RedisRateLimiter
	Metrics         *telemetry.Metrics
	Pool            *pgxpool.Pool // Necessário para readiness check e debug handler

	// Handlers
	PageHandler  *handler.PageHandler
	DebugHandler *handler.DebugHandler
}

// buildRouter constrói o chi.Router com todos os middlewares e rotas.
func buildRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLoggingMiddleware(deps.Log))
	r.Use(middleware.RecoveryMiddleware(deps.Log))
	r.Use(telemetry.OTelMiddleware(deps.Cfg.OTELServiceName))
	if deps.Metrics != nil {
		r.Use(telemetry.MetricsMiddleware(deps.Metrics))
	}

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/openapi.yaml", docs.OpenAPIHandler().ServeHTTP)
	r.Get("/docs", docs.ScalarDocsHandler("/openapi.yaml").ServeHTTP)

	// Runtime/process metrics para scrape local; métricas de request vão via OTel
	r.Get("/metrics", metricsHandler(deps.Cfg.MetricsToken))

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Pool == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ready","note":"pool is nil"}`))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := deps.Pool.Ping(ctx); err != nil {
			deps.Log.Error(ctx, "readiness check failed: database unavailable", zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"error","message":"database unavailable"}`))
			return
		}

		// Redis check is implicit if RateLimiter is working, but here we don't have direct access to redis client
		// In production serve.go, it pings redis directly. To keep it testable, we might skip or use RateLimiter

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	// Debug routes (dev-only)
	if deps.Cfg.AppEnv == "dev" || deps.Cfg.AppEnv == "development" {
		r.Route("/debug", func(r chi.Router) {
			if deps.DebugHandler != nil {
				r.With(auth.AuthMiddleware(deps.Resolver, deps.S2SStore)).Get("/auth", deps.DebugHandler.GetAuthDebug)
				r.With(auth.AuthMiddleware(deps.Resolver, deps.S2SStore)).Get("/auth/workspaces/{workspaceId}", deps.DebugHandler.GetAuthDebugWithWorkspace)
				r.Get("/db/ping", deps.DebugHandler.PingDB)
			}
		})
	}

	// Protected routes with workspace isolation
	r.Route("/v1/workspaces/{workspaceId}", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(deps.Resolver, deps.S2SStore))
		r.Use(middleware.WorkspaceMiddleware)
		r.Use(middleware.RateLimitMiddleware(deps.RateLimiter, deps.Cfg.RateLimitPerWorkspacePerMin))

		// Pages
		if deps.PageHandler != nil {
			r.Route("/pages", func(r chi.Router) {
				idem := middleware.IdempotencyMiddleware(deps.IdempotencyRepo)

				r.Get("/", deps.PageHandler.ListPages)

				// leituras (POST por convenção RPC do produto)
				r.Post("/info", deps.PageHandler.GetPageInfo)
				r.Post("/recent", deps.PageHandler.GetRecentPages)
				r.Post("/deleted", deps.PageHandler.GetDeletedPages)
				r.Post("/sidebar-pages", deps.PageHandler.GetSidebarPages)
				r.Post("/breadcrumbs", deps.PageHandler.GetBreadcrumbs)
				r.Post("/history", deps.PageHandler.ListPageHistory)
				r.Post("/history/info", deps.PageHandler.GetPageHistoryInfo)

				// mutações
				r.With(idem).Post("/create", deps.PageHandler.CreatePage)
				r.With(idem).Post("/update", deps.PageHandler.UpdatePage)
				r.With(idem).Post("/remove", deps.PageHandler.RemovePage)
				r.With(idem).Post("/delete", deps.PageHandler.DeletePage)
				r.With(idem).Post("/restore", deps.PageHandler.RestorePage)
				r.With(idem).Post("/move", deps.PageHandler.MovePage)
				r.With(idem).Post("/move-to-space", deps.PageHandler.MovePageToSpace)
				r.With(idem).Post("/copy-to-space", deps.PageHandler.CopyPageToSpace)
				r.With(idem).Post("/sync-page", deps.PageHandler.CreateSyncPage)
			})
		}
	})

	return r
}

// metricsHandler protege /metrics com um token opcional. Aceita o token via
// X-Metrics-Token ou Authorization: Bearer; sem token configurado, acesso livre.
func metricsHandler(token string) http.HandlerFunc {
	prom := promhttp.Handler()
	return func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			provided := r.Header.Get("X-Metrics-Token")
			if provided == "" {
				if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
					provided = strings.TrimPrefix(ah, "Bearer ")
				}
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		prom.ServeHTTP(w, r)
	}
}
