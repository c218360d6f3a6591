// Package routes registers all HTTP routes for the API.
package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	infrahttp "github.com/auditflow/api/internal/infra/http"
	"github.com/auditflow/api/internal/infra/http/handler"
	"github.com/auditflow/api/internal/infra/websocket"
)

// Middleware is an alias to the http package's Middleware type.
type Middleware = infrahttp.Middleware

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health    *handler.HealthHandler
	Scan      *handler.ScanHandler
	WebSocket *websocket.Handler // nil disables the live status channel
}

// Register registers all application routes. Everything under /api/v1
// runs behind the given API middleware chain (auth, rate limiting).
func Register(router Router, h Handlers, apiMiddlewares ...Middleware) {
	registerHealthRoutes(router, h.Health)

	router.Group("/api/v1", func(r Router) {
		registerScanRoutes(r, h.Scan)
		if h.WebSocket != nil {
			r.GET("/ws", h.WebSocket.ServeWS)
		}
	}, apiMiddlewares...)
}

// registerHealthRoutes registers the unauthenticated probe endpoints.
func registerHealthRoutes(router Router, h *handler.HealthHandler) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
}

func registerScanRoutes(r Router, h *handler.ScanHandler) {
	r.Group("/repos/{repoID}", func(r Router) {
		r.POST("/scan", h.RequestScan)
		r.GET("/scans", h.History)
		r.GET("/scans/latest", h.Latest)
		r.GET("/summary", h.Summary)
		r.GET("/violations", h.Violations)
	})

	// /scans/history must be registered before /scans/{scanID}
	r.GET("/scans/history", h.AllHistory)
	r.GET("/scans/{scanID}", h.Get)

	r.PATCH("/violations/{violationID}", h.UpdateViolation)
	r.GET("/analytics/summary", h.Analytics)
}
