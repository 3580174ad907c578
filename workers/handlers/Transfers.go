package handlers

import (
	"net/http"
)

func (a *API) GetOngoing(w http.ResponseWriter, r *http.Request) {
	ongoing, err := a.engine.ListOngoing(r.Context())
	if err != nil {
		a.log.Error("cannot list ongoing transfers", map[string]any{"error": err})
		responseError(w, err)
		return
	}
	responseJSON(w, ongoing, http.StatusOK)
}

func (a *API) GetCompleted(w http.ResponseWriter, r *http.Request) {
	completed, err := a.engine.ListCompleted(r.Context())
	if err != nil {
		a.log.Error("cannot list completed transfers", map[string]any{"error": err})
		responseError(w, err)
		return
	}
	responseJSON(w, completed, http.StatusOK)
}
