package http

import (
	"net/http"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Router is the routing surface handlers are registered on. It keeps route
// tables independent of the mux implementation.
type Router interface {
	GET(path string, handler http.HandlerFunc)
	POST(path string, handler http.HandlerFunc)
	PATCH(path string, handler http.HandlerFunc)

	// Group mounts fn's routes under prefix. The middlewares apply to every
	// route of the group and of its subgroups.
	Group(prefix string, fn func(Router), middlewares ...Middleware)

	// Use installs middleware for every route of this router.
	Use(middlewares ...Middleware)

	Handler() http.Handler

	// Walk visits every registered method and path.
	Walk(fn func(method, path string, handler http.Handler) error) error
}
