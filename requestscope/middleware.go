package requestscope

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/centraunit/habitat"
	"github.com/centraunit/habitat/config"
)

type ctxKey int

const (
	instanceKey ctxKey = iota
	requestIDKey
)

// Middleware runs each request inside its own instance of s. The request
// id is taken from header, or generated, and echoed on the response.
//
//	r := chi.NewRouter()
//	r.Use(requestscope.Middleware(scope, "X-Request-ID"))
func Middleware(s *Scope, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = config.Default().Request.IDHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(header)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(header, id)

			si, end := s.Begin()
			defer func() {
				// the request context may already be cancelled
				if err := end(context.WithoutCancel(r.Context())); err != nil {
					s.log.WithError(err).WithField("request_id", id).Warn("request scope teardown failed")
				}
			}()

			ctx := context.WithValue(r.Context(), instanceKey, si)
			ctx = context.WithValue(ctx, requestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRouter returns a chi router that recovers panics and runs every
// request in its own instance of s.
func NewRouter(s *Scope, cfg *config.Config) chi.Router {
	if cfg == nil {
		cfg = config.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(Middleware(s, cfg.Request.IDHeader))
	return r
}

// FromContext returns the instance the middleware began for the request.
func FromContext(ctx context.Context) *habitat.ScopeInstance {
	si, _ := ctx.Value(instanceKey).(*habitat.ScopeInstance)
	return si
}

// RequestID returns the request id the middleware assigned.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
