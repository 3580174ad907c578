package handlers

import (
	"net/http"

	"github.com/go-chi/chi"
)

// Balance returns owner's balance of a registered token on a registered chain
func (a *API) Balance(w http.ResponseWriter, r *http.Request) {
	chainID, tokenID, owner := chi.URLParam(r, "chain"), chi.URLParam(r, "token"), chi.URLParam(r, "owner")

	chain, ok := a.registry.Chain(chainID)
	if !ok {
		responseJSON(w, &APIResponse{Status: "error", Field: "chain", Message: "Chain not supported"}, http.StatusNotFound)
		return
	}
	token, ok := a.registry.Token(tokenID)
	if !ok {
		responseJSON(w, &APIResponse{Status: "error", Field: "token", Message: "Token not supported"}, http.StatusNotFound)
		return
	}

	balance, err := a.balances.Balance(r.Context(), chain, token, owner)
	if err != nil {
		a.log.Warn("cannot read balance", map[string]any{"chain": chainID, "token": tokenID, "error": err})
		responseJSON(w, &APIResponse{Status: "error", Message: "Cannot read balance"}, http.StatusBadGateway)
		return
	}

	responseJSON(w, &APIBalanceResponse{
		Status:  "ok",
		Chain:   chain.ID,
		Token:   token.ID,
		Balance: balance.String(),
	}, http.StatusOK)
}
