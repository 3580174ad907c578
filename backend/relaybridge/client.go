package relaybridge

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"gomultibridge/backend"
	"gomultibridge/types"
)

// Client is the relay bridge service contract
type Client interface {
	GetSendFee(ctx context.Context, req FeeRequest) (*big.Int, error)
	GetBridgingFee(ctx context.Context, req FeeRequest) (*big.Int, error)
	CreateTransfer(ctx context.Context, req TransferRequest) ([]byte, error)
	SubmitTransfer(ctx context.Context, payload, signature []byte) (string, error)
	WaitAcknowledged(ctx context.Context, messageHash string) (Acknowledgement, error)
	GetDeliveryStatus(ctx context.Context, correlationID string) (DeliveryStatus, error)
	GetBalance(ctx context.Context, chain, token, address string) (*big.Int, error)
	GetTransferFee(ctx context.Context, chain, token string) (*big.Int, error)
}

type FeeRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
}

type TransferRequest FeeRequest

type Acknowledgement struct {
	MessageHash     string `json:"messageHash"`
	Nonce           string `json:"nonce"`
	SubmissionIndex string `json:"submissionIndex"`
	Status          string `json:"status"`
}

type DeliveryStatus struct {
	Status             string `json:"status"`
	Submitted          bool   `json:"submitted"`
	DestinationReached bool   `json:"destinationReached"`
	MessageHash        string `json:"messageHash"`
	Nonce              string `json:"nonce"`
	SubmissionIndex    string `json:"submissionIndex"`
}

// RPCClient talks to the relay bridge JSON-RPC service
type RPCClient struct {
	rpc *backend.RPC
}

func NewRPCClient(endpoint string, timeout time.Duration) *RPCClient {
	return &RPCClient{rpc: backend.NewRPC(endpoint, timeout)}
}

type amountResult struct {
	Amount string `json:"amount"`
}

func (a amountResult) parse(method string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(a.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("%s returned invalid amount %q", method, a.Amount)
	}
	return v, nil
}

func (c *RPCClient) amount(ctx context.Context, method string, params interface{}) (*big.Int, error) {
	var res amountResult
	if err := c.rpc.Call(ctx, &res, method, params); err != nil {
		return nil, err
	}
	return res.parse(method)
}

func (c *RPCClient) GetSendFee(ctx context.Context, req FeeRequest) (*big.Int, error) {
	return c.amount(ctx, "bridge_getSendFee", req)
}

func (c *RPCClient) GetBridgingFee(ctx context.Context, req FeeRequest) (*big.Int, error) {
	return c.amount(ctx, "bridge_getBridgingFee", req)
}

func (c *RPCClient) CreateTransfer(ctx context.Context, req TransferRequest) ([]byte, error) {
	var res struct {
		Payload []byte `json:"payload"`
	}
	if err := c.rpc.Call(ctx, &res, "bridge_createTransfer", req); err != nil {
		return nil, err
	}
	return res.Payload, nil
}

func (c *RPCClient) SubmitTransfer(ctx context.Context, payload, signature []byte) (string, error) {
	var res struct {
		MessageHash string `json:"messageHash"`
	}
	err := c.rpc.Call(ctx, &res, "bridge_submitTransfer", map[string]interface{}{
		"payload":   payload,
		"signature": signature,
	})
	if err != nil {
		return "", err
	}
	return res.MessageHash, nil
}

func (c *RPCClient) WaitAcknowledged(ctx context.Context, messageHash string) (Acknowledgement, error) {
	var res Acknowledgement
	err := c.rpc.Call(ctx, &res, "bridge_waitAcknowledged", map[string]string{"messageHash": messageHash})
	return res, err
}

func (c *RPCClient) GetDeliveryStatus(ctx context.Context, correlationID string) (DeliveryStatus, error) {
	var res DeliveryStatus
	err := c.rpc.Call(ctx, &res, "bridge_getDeliveryStatus", map[string]string{"id": correlationID})
	return res, err
}

func (c *RPCClient) GetBalance(ctx context.Context, chain, token, address string) (*big.Int, error) {
	return c.amount(ctx, "bridge_getBalance", map[string]string{
		"chain": chain, "token": token, "address": address,
	})
}

func (c *RPCClient) GetTransferFee(ctx context.Context, chain, token string) (*big.Int, error) {
	return c.amount(ctx, "bridge_getTransferFee", map[string]string{"chain": chain, "token": token})
}

// Reader exposes the client's balance and transfer cost queries for the
// relay network families
type Reader struct {
	Client Client
}

func (r Reader) Balance(ctx context.Context, chain types.Chain, token types.Token, owner string) (*big.Int, error) {
	return r.Client.GetBalance(ctx, chain.ID, token.ID, owner)
}

func (r Reader) TransferCost(ctx context.Context, chain types.Chain, token types.Token) (*big.Int, error) {
	return r.Client.GetTransferFee(ctx, chain.ID, token.ID)
}
