package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nimbletv/pulse/internal/arbiter"
	"github.com/nimbletv/pulse/internal/focus"
)

// SetupRoutes builds the local diagnostics router.
func SetupRoutes(a *arbiter.Arbiter, auth *focus.Authority, lock *focus.Lock) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/debug/state", State(a, auth, lock))
	r.Post("/debug/key", InjectKey(auth))
	return r
}
