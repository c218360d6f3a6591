package main

import (
	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/internal/infra/http/handler"
	"github.com/auditflow/api/internal/infra/http/routes"
	"github.com/auditflow/api/internal/infra/postgres"
	"github.com/auditflow/api/internal/infra/redis"
	"github.com/auditflow/api/internal/infra/websocket"
	"github.com/auditflow/api/pkg/logger"
	"github.com/auditflow/api/pkg/validator"
)

// HandlerDeps contains dependencies needed to create handlers.
type HandlerDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	DB          *postgres.DB
	RedisClient *redis.Client
	Services    *Services
}

// NewHandlers creates all HTTP handlers.
func NewHandlers(deps *HandlerDeps) routes.Handlers {
	return routes.Handlers{
		Health: handler.NewHealthHandler(
			handler.WithDatabase(deps.DB),
			handler.WithRedis(deps.RedisClient),
		),
		Scan:      handler.NewScanHandler(deps.Services.Scan, validator.New(), deps.Log),
		WebSocket: websocket.NewHandler(deps.Services.WebSocketHub, deps.Config.Server.AllowedOrigins, deps.Log),
	}
}
