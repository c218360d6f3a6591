package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type chiRouter struct {
	mux chi.Router
}

var _ Router = (*chiRouter)(nil)

// NewChiRouter returns a chi-backed Router. Client IPs are taken from
// X-Real-IP / X-Forwarded-For and paths are cleaned before routing.
func NewChiRouter() Router {
	mux := chi.NewRouter()
	mux.Use(chimw.RealIP, chimw.CleanPath, chimw.StripSlashes)
	return &chiRouter{mux: mux}
}

func (r *chiRouter) GET(path string, handler http.HandlerFunc) {
	r.mux.Get(path, handler)
}

func (r *chiRouter) POST(path string, handler http.HandlerFunc) {
	r.mux.Post(path, handler)
}

func (r *chiRouter) PATCH(path string, handler http.HandlerFunc) {
	r.mux.Patch(path, handler)
}

func (r *chiRouter) Group(prefix string, fn func(Router), middlewares ...Middleware) {
	r.mux.Route(prefix, func(sub chi.Router) {
		for _, mw := range middlewares {
			sub.Use(mw)
		}
		fn(&chiRouter{mux: sub})
	})
}

func (r *chiRouter) Use(middlewares ...Middleware) {
	for _, mw := range middlewares {
		r.mux.Use(mw)
	}
}

func (r *chiRouter) Handler() http.Handler {
	return r.mux
}

// Walk skips chi's catch-all mount entries.
func (r *chiRouter) Walk(fn func(method, path string, handler http.Handler) error) error {
	return chi.Walk(r.mux, func(method, route string, handler http.Handler, _ ...func(http.Handler) http.Handler) error {
		if route == "/*" {
			return nil
		}
		return fn(method, route, handler)
	})
}
