package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nimbletv/pulse/internal/arbiter"
	"github.com/nimbletv/pulse/internal/focus"
)

type stateResponse struct {
	FocusOwner  focus.Owner  `json:"focus_owner"`
	ForceLocked bool         `json:"force_locked"`
	Overlays    arbiter.View `json:"overlays"`
}

// State reports the live focus owner and overlay view.
func State(a *arbiter.Arbiter, auth *focus.Authority, lock *focus.Lock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan arbiter.View, 1)
		a.Inbox() <- arbiter.GetView{Reply: reply}

		var view arbiter.View
		select {
		case view = <-reply:
		case <-time.After(2 * time.Second):
			http.Error(w, "arbiter not responding", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stateResponse{
			FocusOwner:  auth.Owner(),
			ForceLocked: lock.Active(),
			Overlays:    view,
		})
	}
}

type keyRequest struct {
	Code     int    `json:"code"`
	Name     string `json:"name"`
	Consumed bool   `json:"consumed"`
}

// InjectKey feeds a raw key event into the focus authority, for dev remotes
// and integration harnesses.
func InjectKey(auth *focus.Authority) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req keyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		effects := auth.HandleRawKey(req.Code, req.Name, req.Consumed)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Owner   focus.Owner    `json:"owner"`
			Effects []focus.Effect `json:"effects"`
		}{Owner: auth.Owner(), Effects: effects})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
