// Package routed drives transfers over the routed cross-chain messaging
// protocol, including swaps through exchange hops.
package routed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"gomultibridge/backend"
	"gomultibridge/logger"
	"gomultibridge/registry"
	"gomultibridge/types"

	"golang.org/x/sync/errgroup"
)

type Backend struct {
	client      Client
	registry    registry.Lookup
	explorerURL string
	log         logger.Logger
}

func New(client Client, reg registry.Lookup, explorerURL string, log logger.Logger) *Backend {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Backend{client: client, registry: reg, explorerURL: explorerURL, log: log}
}

func (b *Backend) Kind() backend.Kind { return backend.RoutedMessaging }

func request(params types.TransferParams) TransferRequest {
	req := TransferRequest{
		Origin:      params.SourceChain,
		Destination: params.DestinationChain,
		Currency:    params.SourceToken,
		Sender:      params.Sender,
		Recipient:   params.Recipient,
	}
	if params.Amount != nil {
		req.Amount = params.Amount.String()
	}
	if params.IsSwap() {
		req.DestinationCurrency = params.DestinationToken
	}
	return req
}

func (b *Backend) Prepare(ctx context.Context, params types.TransferParams) error {
	for _, id := range []string{params.SourceChain, params.DestinationChain} {
		if _, ok := b.registry.Chain(id); !ok {
			return types.NewError(types.ErrCodeRouteUnsupported, "unknown chain "+id, nil)
		}
	}
	return nil
}

func sufficiency(d FeeDetail) types.Sufficiency {
	if d.FeeType != FeeTypeDryRun || d.Sufficient == nil {
		return types.Undetermined
	}
	if *d.Sufficient {
		return types.Sufficient
	}
	return types.Insufficient
}

func leg(title types.FeeTitle, chain string, d FeeDetail) (types.FeeLeg, error) {
	v, ok := new(big.Int).SetString(d.Fee, 10)
	if !ok {
		return types.FeeLeg{}, fmt.Errorf("invalid %s amount %q on %s", strings.ToLower(string(title)), d.Fee, chain)
	}
	return types.FeeLeg{
		Title:       title,
		Chain:       chain,
		Amount:      types.Amount{Token: d.Asset, Value: v},
		Sufficiency: sufficiency(d),
	}, nil
}

// QuoteFees maps the service's origin, hop and destination fees to
// Execution, Routing (Swap on exchange hops) and Delivery legs
func (b *Backend) QuoteFees(ctx context.Context, params types.TransferParams) ([]types.FeeLeg, error) {
	fee, err := b.client.GetXcmFee(ctx, request(params))
	if err != nil {
		return nil, err
	}

	legs := make([]types.FeeLeg, 0, len(fee.Hops)+2)
	origin, err := leg(types.FeeExecution, params.SourceChain, fee.Origin)
	if err != nil {
		return nil, err
	}
	legs = append(legs, origin)

	for _, hop := range fee.Hops {
		title := types.FeeRouting
		if hop.Exchange {
			title = types.FeeSwap
		}
		l, err := leg(title, hop.Chain, hop.Result)
		if err != nil {
			return nil, err
		}
		legs = append(legs, l)
	}

	if fee.Destination.FeeType != FeeTypeNoFee {
		dest, err := leg(types.FeeDelivery, params.DestinationChain, fee.Destination)
		if err != nil {
			return nil, err
		}
		legs = append(legs, dest)
	}
	return legs, nil
}

func (b *Backend) EstimateOutput(ctx context.Context, params types.TransferParams) (*big.Int, error) {
	return b.client.GetExchangeOutputAmount(ctx, request(params))
}

func (b *Backend) DryRun(ctx context.Context, params types.TransferParams) (backend.DryRunResult, error) {
	res, err := b.client.DryRun(ctx, request(params))
	if err != nil {
		return backend.DryRunResult{}, err
	}
	return backend.DryRunResult{Success: res.Success, FailureReason: res.FailureReason}, nil
}

func (b *Backend) BuildTx(ctx context.Context, params types.TransferParams) (backend.UnsignedTx, error) {
	payload, err := b.client.BuildTransferTx(ctx, request(params))
	if err != nil {
		return backend.UnsignedTx{}, err
	}
	return backend.UnsignedTx{Chain: params.SourceChain, From: params.Sender, Payload: payload}, nil
}

type submission struct {
	client Client
	txHash string
}

// before acknowledgement only the transaction hash is known
func (s *submission) Correlation() types.Correlation {
	return types.Correlation{}
}

func (s *submission) Wait(ctx context.Context) (backend.Ack, error) {
	ack, err := s.client.WaitAcknowledged(ctx, s.txHash)
	if err != nil {
		return backend.Ack{}, err
	}
	return backend.Ack{
		Correlation: types.Correlation{
			MessageHash:     ack.MessageHash,
			MessageID:       ack.MessageID,
			SubmissionIndex: ack.ExtrinsicIndex,
		},
		Status: ack.Status,
		At:     time.Now().UTC(),
	}, nil
}

func (b *Backend) Broadcast(ctx context.Context, tx backend.SignedTx) (backend.Submission, error) {
	hash, err := b.client.Submit(ctx, tx.Unsigned.Payload, tx.Signature)
	if err != nil {
		return nil, err
	}
	return &submission{client: b.client, txHash: hash}, nil
}

// MapStatus converts an indexed message status into the canonical status
func MapStatus(m Message) types.TrackingStatus {
	switch strings.ToLower(m.Status) {
	case "success", "executed":
		return types.StatusCompleted
	case "failed":
		return types.StatusFailed
	case "pending":
		return types.StatusPending
	case "relayed", "in_transit":
		if m.CurrentHop != "" {
			return types.StatusArrivingAtIntermediateHop
		}
		return types.StatusArrivingAtDestination
	default:
		return types.StatusUnknown
	}
}

// Status fetches the message list once per distinct sender
func (b *Backend) Status(ctx context.Context, transfers []*types.OngoingTransfer) ([]backend.StatusRecord, error) {
	senders := make(map[string]bool)
	for _, t := range transfers {
		senders[t.Params.Sender] = true
	}

	var (
		mu      sync.Mutex
		records []backend.StatusRecord
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for sender := range senders {
		sender := sender
		g.Go(func() error {
			msgs, err := b.client.GetMessages(gctx, sender)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("messages of %s: %w", sender, err))
				return nil
			}
			for _, m := range msgs {
				corr := types.Correlation{MessageHash: m.MessageHash, MessageID: m.MessageID, SubmissionIndex: m.ExtrinsicIndex}
				records = append(records, backend.StatusRecord{
					Correlation:  corr,
					Status:       MapStatus(m),
					Detail:       m.Status,
					ExplorerLink: b.ExplorerLink(corr),
				})
			}
			return nil
		})
	}
	_ = g.Wait()
	return records, errors.Join(errs...)
}

func (b *Backend) ExplorerLink(c types.Correlation) string {
	id := c.MessageHash
	if id == "" {
		id = c.MessageID
	}
	if b.explorerURL == "" || id == "" {
		return ""
	}
	return fmt.Sprintf(b.explorerURL, id)
}
