package handlers

import (
	"net/http"
)

// State reports store counts and reconciler progress
func (a *API) State(w http.ResponseWriter, r *http.Request) {
	state, err := a.engine.State(r.Context())
	if err != nil {
		a.log.Error("cannot read engine state", map[string]any{"error": err})
		responseError(w, err)
		return
	}
	responseJSON(w, state, http.StatusOK)
}
