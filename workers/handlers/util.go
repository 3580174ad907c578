package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"

	"gomultibridge/types"
)

// request bodies are small, anything bigger is rejected
const maxBodySize = 1 << 16

func responseJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func responseError(w http.ResponseWriter, err error) {
	var te *types.TransferError
	if !errors.As(err, &te) {
		responseJSON(w, &APIResponse{Status: "error", Message: "internal error"}, http.StatusInternalServerError)
		return
	}
	responseJSON(w, &APIResponse{Status: "error", Code: te.Code, Message: te.Message}, statusFor(te.Code))
}

func statusFor(code string) int {
	switch code {
	case types.ErrCodeInvalidParams, types.ErrCodeRouteUnsupported, types.ErrCodeValidation:
		return http.StatusBadRequest
	case types.ErrCodeQuoteFailed, types.ErrCodeSubmission:
		return http.StatusBadGateway
	case types.ErrCodeTrackingTimeout:
		return http.StatusGatewayTimeout
	case types.ErrCodeUserCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeTransfer(body io.Reader) (types.TransferParams, *APIResponse) {
	var req TransferRequest
	dec := json.NewDecoder(io.LimitReader(body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		return types.TransferParams{}, &APIResponse{
			Status:  "error",
			Code:    types.ErrCodeInvalidParams,
			Message: "Cannot unmarshal input JSON",
		}
	}
	return req.Params()
}

// Params converts the request, the amount must be a base 10 integer
func (req TransferRequest) Params() (types.TransferParams, *APIResponse) {
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return types.TransferParams{}, &APIResponse{
			Status:  "error",
			Code:    types.ErrCodeInvalidParams,
			Field:   "amount",
			Message: "Amount must be an integer in the token's smallest unit",
		}
	}
	return types.TransferParams{
		SourceChain:      req.SourceChain,
		DestinationChain: req.DestinationChain,
		SourceToken:      req.SourceToken,
		DestinationToken: req.DestinationToken,
		Amount:           amount,
		Sender:           req.Sender,
		Recipient:        req.Recipient,
		Fees:             req.Fees,
	}, nil
}
