package routed

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"gomultibridge/backend"
)

// Client is the routed messaging service contract
type Client interface {
	GetXcmFee(ctx context.Context, req TransferRequest) (XcmFee, error)
	BuildTransferTx(ctx context.Context, req TransferRequest) ([]byte, error)
	DryRun(ctx context.Context, req TransferRequest) (DryRunResult, error)
	GetExchangeOutputAmount(ctx context.Context, req TransferRequest) (*big.Int, error)
	Submit(ctx context.Context, payload, signature []byte) (string, error)
	WaitAcknowledged(ctx context.Context, txHash string) (Acknowledgement, error)
	GetMessages(ctx context.Context, sender string) ([]Message, error)
}

type TransferRequest struct {
	Origin              string `json:"origin"`
	Destination         string `json:"destination"`
	Currency            string `json:"currency"`
	DestinationCurrency string `json:"destinationCurrency,omitempty"`
	Amount              string `json:"amount"`
	Sender              string `json:"senderAddress"`
	Recipient           string `json:"address"`
}

// fee types reported by the service
const (
	FeeTypeDryRun      = "dryRun"
	FeeTypePaymentInfo = "paymentInfo"
	FeeTypeNoFee       = "noFeeRequired"
)

type FeeDetail struct {
	FeeType    string `json:"feeType"`
	Fee        string `json:"fee"`
	Asset      string `json:"asset"`
	Sufficient *bool  `json:"sufficient,omitempty"`
}

type HopFee struct {
	Chain    string    `json:"chain"`
	Exchange bool      `json:"isExchange"`
	Result   FeeDetail `json:"result"`
}

type XcmFee struct {
	Origin      FeeDetail `json:"origin"`
	Hops        []HopFee  `json:"hops"`
	Destination FeeDetail `json:"destination"`
}

type DryRunResult struct {
	Success       bool   `json:"success"`
	FailureReason string `json:"failureReason"`
}

type Acknowledgement struct {
	MessageHash    string `json:"messageHash"`
	MessageID      string `json:"messageId"`
	ExtrinsicIndex string `json:"extrinsicIndex"`
	Status         string `json:"status"`
}

// Message is one cross-chain message as indexed by the service
type Message struct {
	MessageHash    string `json:"messageHash"`
	MessageID      string `json:"messageId"`
	ExtrinsicIndex string `json:"extrinsicIndex"`
	Status         string `json:"status"`
	// chain the message is currently being relayed through, empty once at destination
	CurrentHop string `json:"currentHop"`
}

type RPCClient struct {
	rpc *backend.RPC
}

func NewRPCClient(endpoint string, timeout time.Duration) *RPCClient {
	return &RPCClient{rpc: backend.NewRPC(endpoint, timeout)}
}

func (c *RPCClient) GetXcmFee(ctx context.Context, req TransferRequest) (XcmFee, error) {
	var res XcmFee
	err := c.rpc.Call(ctx, &res, "xcm_getXcmFee", req)
	return res, err
}

func (c *RPCClient) BuildTransferTx(ctx context.Context, req TransferRequest) ([]byte, error) {
	var res struct {
		Tx []byte `json:"tx"`
	}
	if err := c.rpc.Call(ctx, &res, "xcm_buildTransferTx", req); err != nil {
		return nil, err
	}
	return res.Tx, nil
}

func (c *RPCClient) DryRun(ctx context.Context, req TransferRequest) (DryRunResult, error) {
	var res DryRunResult
	err := c.rpc.Call(ctx, &res, "xcm_dryRun", req)
	return res, err
}

func (c *RPCClient) GetExchangeOutputAmount(ctx context.Context, req TransferRequest) (*big.Int, error) {
	var res struct {
		Amount string `json:"amount"`
	}
	if err := c.rpc.Call(ctx, &res, "xcm_getExchangeOutputAmount", req); err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(res.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("xcm_getExchangeOutputAmount returned invalid amount %q", res.Amount)
	}
	return v, nil
}

func (c *RPCClient) Submit(ctx context.Context, payload, signature []byte) (string, error) {
	var res struct {
		TxHash string `json:"txHash"`
	}
	err := c.rpc.Call(ctx, &res, "xcm_submit", map[string]interface{}{
		"tx":        payload,
		"signature": signature,
	})
	return res.TxHash, err
}

func (c *RPCClient) WaitAcknowledged(ctx context.Context, txHash string) (Acknowledgement, error) {
	var res Acknowledgement
	err := c.rpc.Call(ctx, &res, "xcm_waitAcknowledged", map[string]string{"txHash": txHash})
	return res, err
}

func (c *RPCClient) GetMessages(ctx context.Context, sender string) ([]Message, error) {
	var res struct {
		List []Message `json:"list"`
	}
	if err := c.rpc.Call(ctx, &res, "xcm_getMessages", map[string]string{"sender": sender}); err != nil {
		return nil, err
	}
	return res.List, nil
}
