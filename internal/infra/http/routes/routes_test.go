package routes

import (
	"net/http"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infrahttp "github.com/auditflow/api/internal/infra/http"
	"github.com/auditflow/api/internal/infra/http/handler"
	"github.com/auditflow/api/internal/infra/websocket"
	"github.com/auditflow/api/pkg/logger"
	"github.com/auditflow/api/pkg/validator"
)

func TestRegister(t *testing.T) {
	log := logger.NewNop()
	router := infrahttp.NewChiRouter()

	passthrough := func(next http.Handler) http.Handler { return next }

	Register(router, Handlers{
		Health:    handler.NewHealthHandler(),
		Scan:      handler.NewScanHandler(nil, validator.New(), log),
		WebSocket: websocket.NewHandler(websocket.NewHub(log), nil, log),
	}, passthrough)

	var got []string
	require.NoError(t, router.Walk(func(method, path string, _ http.Handler) error {
		got = append(got, method+" "+path)
		return nil
	}))
	sort.Strings(got)

	want := []string{
		"GET /api/v1/analytics/summary",
		"GET /api/v1/repos/{repoID}/scans",
		"GET /api/v1/repos/{repoID}/scans/latest",
		"GET /api/v1/repos/{repoID}/summary",
		"GET /api/v1/repos/{repoID}/violations",
		"GET /api/v1/scans/history",
		"GET /api/v1/scans/{scanID}",
		"GET /api/v1/ws",
		"GET /health",
		"GET /metrics",
		"GET /ready",
		"PATCH /api/v1/violations/{violationID}",
		"POST /api/v1/repos/{repoID}/scan",
	}
	for _, route := range want {
		assert.Contains(t, got, route)
	}
}
