// Package relaybridge drives transfers over the direct relay-chain bridge.
// It cannot swap: source and destination token must be the same.
package relaybridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"gomultibridge/backend"
	"gomultibridge/fees"
	"gomultibridge/logger"
	"gomultibridge/registry"
	"gomultibridge/types"

	"golang.org/x/sync/errgroup"
)

// parallel delivery status queries per poll
const statusConcurrency = 4

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

func (b *Backend) Kind() backend.Kind { return backend.RelayBridge }

type route struct {
	source, destination types.Chain
	gasToken            types.Token
	// the destination's native gas token pays for execution there
	execToken types.Token
}

func (b *Backend) resolve(params types.TransferParams) (route, error) {
	if params.IsSwap() {
		return route{}, types.NewError(types.ErrCodeRouteUnsupported, "relay bridge cannot swap tokens", nil)
	}
	src, ok := b.registry.Chain(params.SourceChain)
	if !ok {
		return route{}, types.NewError(types.ErrCodeRouteUnsupported, "unknown chain "+params.SourceChain, nil)
	}
	dst, ok := b.registry.Chain(params.DestinationChain)
	if !ok {
		return route{}, types.NewError(types.ErrCodeRouteUnsupported, "unknown chain "+params.DestinationChain, nil)
	}
	gas, ok := b.registry.Token(src.NativeToken)
	if !ok {
		return route{}, fmt.Errorf("native token %s of %s not registered", src.NativeToken, src.ID)
	}
	exec, ok := b.registry.Token(dst.NativeToken)
	if !ok {
		return route{}, fmt.Errorf("native token %s of %s not registered", dst.NativeToken, dst.ID)
	}
	return route{source: src, destination: dst, gasToken: gas, execToken: exec}, nil
}

// crossesBridge is true when the transfer leaves one relay network for the other
func (r route) crossesBridge() bool {
	return r.source.Family != r.destination.Family
}

func feeRequest(params types.TransferParams) FeeRequest {
	return FeeRequest{
		Source:      params.SourceChain,
		Destination: params.DestinationChain,
		Token:       params.SourceToken,
		Amount:      params.Amount.String(),
		Sender:      params.Sender,
		Recipient:   params.Recipient,
	}
}

func (b *Backend) Prepare(ctx context.Context, params types.TransferParams) error {
	_, err := b.resolve(params)
	return err
}

// QuoteFees returns the execution leg, paid in the destination chain's
// native gas token, and when crossing into the other network the bridging
// leg in the source chain's gas token. Each leg is checked as a running
// total against the sender's balance of its token.
func (b *Backend) QuoteFees(ctx context.Context, params types.TransferParams) ([]types.FeeLeg, error) {
	r, err := b.resolve(params)
	if err != nil {
		return nil, err
	}
	req := feeRequest(params)

	tokens := []string{r.execToken.ID}
	if r.crossesBridge() && r.gasToken.ID != r.execToken.ID {
		tokens = append(tokens, r.gasToken.ID)
	}

	var (
		sendFee, bridgingFee *big.Int
		mu                   sync.Mutex
		balances             = map[string]*big.Int{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sendFee, err = b.client.GetSendFee(gctx, req)
		return err
	})
	if r.crossesBridge() {
		g.Go(func() error {
			var err error
			bridgingFee, err = b.client.GetBridgingFee(gctx, req)
			return err
		})
	}
	for _, token := range tokens {
		g.Go(func() error {
			bal, err := b.client.GetBalance(gctx, r.source.ID, token, params.Sender)
			if err != nil {
				b.log.Warn("cannot read fee token balance", map[string]any{"chain": r.source.ID, "token": token, "error": err})
				return nil
			}
			mu.Lock()
			balances[token] = bal
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	legs := []types.FeeLeg{{
		Title:  types.FeeExecution,
		Chain:  r.source.ID,
		Amount: types.Amount{Token: r.execToken.ID, Value: sendFee},
	}}
	if bridgingFee != nil {
		legs = append(legs, types.FeeLeg{
			Title:  types.FeeBridging,
			Chain:  r.source.ID,
			Amount: types.Amount{Token: r.gasToken.ID, Value: bridgingFee},
		})
	}

	for _, token := range tokens {
		balance, ok := balances[token]
		if !ok {
			for i := range legs {
				if legs[i].Amount.Token == token {
					legs[i].Sufficiency = types.Undetermined
				}
			}
			continue
		}
		var principal *big.Int
		if params.SourceToken == token {
			principal = params.Amount
		}
		fees.RunningTotal(legs, r.source.ID, token, balance, principal)
	}
	return legs, nil
}

func (b *Backend) EstimateOutput(ctx context.Context, params types.TransferParams) (*big.Int, error) {
	return nil, types.NewError(types.ErrCodeRouteUnsupported, "relay bridge has no output quote", nil)
}

func (b *Backend) DryRun(ctx context.Context, params types.TransferParams) (backend.DryRunResult, error) {
	return backend.DryRunResult{}, backend.ErrDryRunUnsupported
}

func (b *Backend) BuildTx(ctx context.Context, params types.TransferParams) (backend.UnsignedTx, error) {
	if _, err := b.resolve(params); err != nil {
		return backend.UnsignedTx{}, err
	}
	payload, err := b.client.CreateTransfer(ctx, TransferRequest(feeRequest(params)))
	if err != nil {
		return backend.UnsignedTx{}, err
	}
	return backend.UnsignedTx{Chain: params.SourceChain, From: params.Sender, Payload: payload}, nil
}

type submission struct {
	client      Client
	messageHash string
}

func (s *submission) Correlation() types.Correlation {
	return types.Correlation{MessageHash: s.messageHash}
}

func (s *submission) Wait(ctx context.Context) (backend.Ack, error) {
	ack, err := s.client.WaitAcknowledged(ctx, s.messageHash)
	if err != nil {
		return backend.Ack{}, err
	}
	hash := ack.MessageHash
	if hash == "" {
		hash = s.messageHash
	}
	return backend.Ack{
		Correlation: types.Correlation{MessageHash: hash, MessageID: ack.Nonce, SubmissionIndex: ack.SubmissionIndex},
		Status:      ack.Status,
		At:          time.Now().UTC(),
	}, nil
}

func (b *Backend) Broadcast(ctx context.Context, tx backend.SignedTx) (backend.Submission, error) {
	hash, err := b.client.SubmitTransfer(ctx, tx.Unsigned.Payload, tx.Signature)
	if err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, errors.New("relay bridge returned an empty message hash")
	}
	return &submission{client: b.client, messageHash: hash}, nil
}

func correlationID(c types.Correlation) string {
	switch {
	case c.MessageHash != "":
		return c.MessageHash
	case c.MessageID != "":
		return c.MessageID
	default:
		return c.SubmissionIndex
	}
}

// MapStatus converts a delivery status into the canonical status
func MapStatus(s DeliveryStatus, crossesBridge bool) types.TrackingStatus {
	switch {
	case s.Status == "failed" || s.Status == "dispatch-failed":
		return types.StatusFailed
	case s.DestinationReached || s.Status == "delivered":
		return types.StatusCompleted
	case s.Submitted && crossesBridge:
		return types.StatusArrivingAtIntermediateHop
	case s.Submitted:
		return types.StatusArrivingAtDestination
	case s.Status == "" || s.Status == "unknown":
		return types.StatusUnknown
	default:
		return types.StatusPending
	}
}

// Status queries delivery status per transfer. Failed queries are skipped
// and reported through the returned error next to the records that succeeded.
func (b *Backend) Status(ctx context.Context, transfers []*types.OngoingTransfer) ([]backend.StatusRecord, error) {
	var (
		mu      sync.Mutex
		records []backend.StatusRecord
		errs    []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusConcurrency)
	for _, t := range transfers {
		t := t
		id := correlationID(t.Correlation)
		if id == "" {
			continue
		}
		g.Go(func() error {
			st, err := b.client.GetDeliveryStatus(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("delivery status of %s: %w", id, err))
				return nil
			}
			crosses := false
			if r, err := b.resolve(t.Params); err == nil {
				crosses = r.crossesBridge()
			}
			corr := types.Correlation{MessageHash: st.MessageHash, MessageID: st.Nonce, SubmissionIndex: st.SubmissionIndex}
			if corr.Empty() {
				// service answered for the id we asked about
				corr = t.Correlation
			}
			rec := backend.StatusRecord{
				Correlation: corr,
				Status:      MapStatus(st, crosses),
				Detail:      st.Status,
			}
			rec.ExplorerLink = b.ExplorerLink(t.Correlation.Merge(corr))
			records = append(records, rec)
			return nil
		})
	}
	_ = g.Wait()
	return records, errors.Join(errs...)
}

func (b *Backend) ExplorerLink(c types.Correlation) string {
	id := correlationID(c)
	if b.explorerURL == "" || id == "" {
		return ""
	}
	return fmt.Sprintf(b.explorerURL, id)
}
