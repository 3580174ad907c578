// Package backend defines the capability set every bridging backend
// implements. The set of backends is closed: relay bridge, routed
// messaging and settlement swap.
package backend

import (
	"context"
	"errors"
	"math/big"
	"time"

	"gomultibridge/types"
)

type Kind string

const (
	RelayBridge     Kind = "relay-bridge"
	RoutedMessaging Kind = "routed-messaging"
	SettlementSwap  Kind = "settlement-swap"
)

func (k Kind) Valid() bool {
	return k == RelayBridge || k == RoutedMessaging || k == SettlementSwap
}

// ErrDryRunUnsupported is returned by DryRun when the backend cannot simulate
var ErrDryRunUnsupported = errors.New("dry-run not supported")

type UnsignedTx struct {
	Chain   string            `json:"chain"`
	From    string            `json:"from"`
	Payload []byte            `json:"payload"`
	Meta    map[string]string `json:"meta,omitempty"`
}

type SignedTx struct {
	Unsigned  UnsignedTx `json:"unsigned"`
	Signature []byte     `json:"signature"`
}

type DryRunResult struct {
	Success       bool
	FailureReason string
}

// Ack is the backend's acknowledgement of a broadcast, not finality
type Ack struct {
	Correlation types.Correlation
	Status      string
	At          time.Time
}

// Submission is a broadcast transaction. Correlation is known as soon as
// the transaction is submitted, Wait blocks until the backend acknowledges it.
type Submission interface {
	Correlation() types.Correlation
	Wait(ctx context.Context) (Ack, error)
}

// StatusRecord is one backend-side view of a transfer, already mapped to
// the canonical status
type StatusRecord struct {
	Correlation  types.Correlation
	Status       types.TrackingStatus
	Detail       string
	ExplorerLink string
}

type Backend interface {
	Kind() Kind
	// Prepare acquires backend live context (provider handle, connection)
	Prepare(ctx context.Context, params types.TransferParams) error
	QuoteFees(ctx context.Context, params types.TransferParams) ([]types.FeeLeg, error)
	// EstimateOutput returns the backend-quoted output for swaps and settlement routes
	EstimateOutput(ctx context.Context, params types.TransferParams) (*big.Int, error)
	DryRun(ctx context.Context, params types.TransferParams) (DryRunResult, error)
	BuildTx(ctx context.Context, params types.TransferParams) (UnsignedTx, error)
	Broadcast(ctx context.Context, tx SignedTx) (Submission, error)
	// Status queries the backend for the given transfers, returned records
	// are matched by the caller through correlation ids
	Status(ctx context.Context, transfers []*types.OngoingTransfer) ([]StatusRecord, error)
	ExplorerLink(c types.Correlation) string
}

// Set is the fixed backend collection selected by registry route kind
type Set map[Kind]Backend

func (s Set) Get(name string) (Backend, error) {
	b, ok := s[Kind(name)]
	if !ok {
		return nil, types.NewError(types.ErrCodeRouteUnsupported, "backend "+name+" not configured", nil)
	}
	return b, nil
}

// AckedSubmission is a submission already acknowledged at broadcast time
type AckedSubmission struct {
	Ack Ack
}

func (s AckedSubmission) Correlation() types.Correlation { return s.Ack.Correlation }

func (s AckedSubmission) Wait(context.Context) (Ack, error) { return s.Ack, nil }
