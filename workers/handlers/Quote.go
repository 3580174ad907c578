package handlers

import (
	"net/http"
)

func (a *API) Quote(w http.ResponseWriter, r *http.Request) {
	params, bad := decodeTransfer(r.Body)
	if bad != nil {
		responseJSON(w, bad, http.StatusBadRequest)
		return
	}

	q, err := a.engine.Quote(r.Context(), params)
	if err != nil {
		a.log.Warn("quote failed", map[string]any{
			"sourceChain": params.SourceChain, "destinationChain": params.DestinationChain, "error": err,
		})
		responseError(w, err)
		return
	}

	responseJSON(w, &APIQuoteResponse{
		Status:  "ok",
		Backend: q.Backend,
		Fees:    q.Fees,
		Output:  q.Output.String(),
	}, http.StatusOK)
}
