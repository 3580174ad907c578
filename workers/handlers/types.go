package handlers

import (
	"gomultibridge/submission"
	"gomultibridge/types"
)

type APIResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// TransferRequest carries the amount as a decimal string of the source
// token's smallest unit, JSON numbers lose precision above 2^53
type TransferRequest struct {
	SourceChain      string         `json:"sourceChain"`
	DestinationChain string         `json:"destinationChain"`
	SourceToken      string         `json:"sourceToken"`
	DestinationToken string         `json:"destinationToken"`
	Amount           string         `json:"amount"`
	Sender           string         `json:"sender"`
	Recipient        string         `json:"recipient"`
	Fees             []types.FeeLeg `json:"fees,omitempty"`
}

type APIQuoteResponse struct {
	Status  string         `json:"status"`
	Backend string         `json:"backend"`
	Fees    []types.FeeLeg `json:"fees"`
	Output  string         `json:"output"`
}

type APISubmitResponse struct {
	Status     string             `json:"status"`
	Outcome    submission.Outcome `json:"outcome"`
	TransferID string             `json:"transferId,omitempty"`
	Events     []submission.Event `json:"events"`
}

type APIBalanceResponse struct {
	Status  string `json:"status"`
	Chain   string `json:"chain"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
}
