// Package settlement swaps through a third-party settlement network: the
// sender deposits into a channel and the network pays out the egress amount.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"gomultibridge/backend"
	"gomultibridge/fees"
	"gomultibridge/logger"
	"gomultibridge/registry"
	"gomultibridge/types"

	"golang.org/x/sync/errgroup"
)

// meta keys of the unsigned deposit transaction
const (
	MetaChannelID      = "depositChannelId"
	MetaDepositAddress = "depositAddress"
)

const statusConcurrency = 4

type Backend struct {
	client      Client
	registry    registry.Lookup
	chain       fees.ChainReader
	explorerURL string
	log         logger.Logger
}

// New builds the backend. chain reads the sender's balance and the cost of
// the deposit transaction on the source chain.
func New(client Client, reg registry.Lookup, chain fees.ChainReader, explorerURL string, log logger.Logger) *Backend {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Backend{client: client, registry: reg, chain: chain, explorerURL: explorerURL, log: log}
}

func (b *Backend) Kind() backend.Kind { return backend.SettlementSwap }

func (b *Backend) Prepare(ctx context.Context, params types.TransferParams) error {
	for _, id := range []string{params.SourceChain, params.DestinationChain} {
		if _, ok := b.registry.Chain(id); !ok {
			return types.NewError(types.ErrCodeRouteUnsupported, "unknown chain "+id, nil)
		}
	}
	return nil
}

func quoteRequest(params types.TransferParams) QuoteRequest {
	req := QuoteRequest{
		SourceChain:      params.SourceChain,
		SourceAsset:      params.SourceToken,
		DestinationChain: params.DestinationChain,
		DestinationAsset: params.DestinationToken,
	}
	if params.Amount != nil {
		req.Amount = params.Amount.String()
	}
	return req
}

func parseAmount(field, v string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, fmt.Errorf("settlement quote has invalid %s %q", field, v)
	}
	return n, nil
}

var includedTitles = map[string]types.FeeTitle{
	"ingress": types.FeeDeposit,
	"network": types.FeeSwap,
	"boost":   types.FeeSwap,
	"broker":  types.FeeBroker,
	"egress":  types.FeeDelivery,
}

func (b *Backend) includedLeg(f IncludedFee, params types.TransferParams) (types.FeeLeg, error) {
	title, ok := includedTitles[strings.ToLower(f.Type)]
	if !ok {
		title = types.FeeSwap
	}
	v, err := parseAmount(f.Type+" fee", f.Amount)
	if err != nil {
		return types.FeeLeg{}, err
	}
	chain := f.Chain
	if chain == "" {
		switch title {
		case types.FeeDeposit:
			chain = params.SourceChain
		case types.FeeDelivery:
			chain = params.DestinationChain
		}
	}
	asset := f.Asset
	if asset == "" {
		asset = params.SourceToken
	}
	// already deducted from the swapped amount by the network
	return types.FeeLeg{
		Title:       title,
		Chain:       chain,
		Amount:      types.Amount{Token: asset, Value: v},
		Sufficiency: types.Sufficient,
	}, nil
}

// transferLeg prices the deposit transaction on the source chain
func (b *Backend) transferLeg(ctx context.Context, params types.TransferParams) (types.FeeLeg, error) {
	src, ok := b.registry.Chain(params.SourceChain)
	if !ok {
		return types.FeeLeg{}, types.NewError(types.ErrCodeRouteUnsupported, "unknown chain "+params.SourceChain, nil)
	}
	gas, ok := b.registry.Token(src.NativeToken)
	if !ok {
		return types.FeeLeg{}, fmt.Errorf("native token %s of %s not registered", src.NativeToken, src.ID)
	}
	deposited := gas
	if t, ok := b.registry.Token(params.SourceToken); ok {
		deposited = t
	}

	cost, err := b.chain.TransferCost(ctx, src, deposited)
	if err != nil {
		return types.FeeLeg{}, fmt.Errorf("deposit cost on %s: %w", src.ID, err)
	}
	leg := types.FeeLeg{
		Title:  types.FeeTransfer,
		Chain:  src.ID,
		Amount: types.Amount{Token: gas.ID, Value: cost},
	}

	balance, err := b.chain.Balance(ctx, src, gas, params.Sender)
	if err != nil {
		b.log.Warn("cannot read gas balance", map[string]any{"chain": src.ID, "error": err})
		leg.Sufficiency = types.Undetermined
		return leg, nil
	}
	var principal *big.Int
	if params.SourceToken == gas.ID {
		principal = params.Amount
	}
	legs := []types.FeeLeg{leg}
	fees.RunningTotal(legs, src.ID, gas.ID, balance, principal)
	return legs[0], nil
}

// QuoteFees returns the local Transfer leg followed by the fees the
// network includes in its quote
func (b *Backend) QuoteFees(ctx context.Context, params types.TransferParams) ([]types.FeeLeg, error) {
	var (
		local types.FeeLeg
		quote Quote
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		local, err = b.transferLeg(gctx, params)
		return err
	})
	g.Go(func() error {
		var err error
		quote, err = b.client.GetQuote(gctx, quoteRequest(params))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	legs := make([]types.FeeLeg, 0, len(quote.IncludedFees)+1)
	legs = append(legs, local)
	for _, f := range quote.IncludedFees {
		leg, err := b.includedLeg(f, params)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

// EstimateOutput is the quote's egress amount, included fees are already
// deducted by the network
func (b *Backend) EstimateOutput(ctx context.Context, params types.TransferParams) (*big.Int, error) {
	quote, err := b.client.GetQuote(ctx, quoteRequest(params))
	if err != nil {
		return nil, err
	}
	return parseAmount("egress amount", quote.EgressAmount)
}

func (b *Backend) DryRun(ctx context.Context, params types.TransferParams) (backend.DryRunResult, error) {
	return backend.DryRunResult{}, backend.ErrDryRunUnsupported
}

func (b *Backend) BuildTx(ctx context.Context, params types.TransferParams) (backend.UnsignedTx, error) {
	req := ChannelRequest{
		SourceChain:      params.SourceChain,
		SourceAsset:      params.SourceToken,
		DestinationChain: params.DestinationChain,
		DestinationAsset: params.DestinationToken,
		Sender:           params.Sender,
		Recipient:        params.Recipient,
	}
	if params.Amount != nil {
		req.Amount = params.Amount.String()
	}
	ch, err := b.client.OpenDepositChannel(ctx, req)
	if err != nil {
		return backend.UnsignedTx{}, err
	}
	if ch.ID == "" {
		return backend.UnsignedTx{}, errors.New("settlement returned a deposit channel without id")
	}
	return backend.UnsignedTx{
		Chain:   params.SourceChain,
		From:    params.Sender,
		Payload: ch.Payload,
		Meta: map[string]string{
			MetaChannelID:      ch.ID,
			MetaDepositAddress: ch.DepositAddress,
		},
	}, nil
}

// Broadcast submits the deposit. The network acknowledges it synchronously,
// the deposit channel id is the message id tracked afterwards.
func (b *Backend) Broadcast(ctx context.Context, tx backend.SignedTx) (backend.Submission, error) {
	channelID := tx.Unsigned.Meta[MetaChannelID]
	if channelID == "" {
		return nil, errors.New("deposit transaction without channel id")
	}
	hash, err := b.client.SubmitDeposit(ctx, channelID, tx.Unsigned.Payload, tx.Signature)
	if err != nil {
		return nil, err
	}
	return backend.AckedSubmission{Ack: backend.Ack{
		Correlation: types.Correlation{MessageHash: hash, MessageID: channelID},
		Status:      "deposit submitted",
		At:          time.Now().UTC(),
	}}, nil
}

// MapStatus converts a swap state into the canonical status
func MapStatus(state string) types.TrackingStatus {
	switch strings.ToUpper(state) {
	case "WAITING", "AWAITING_DEPOSIT", "RECEIVING":
		return types.StatusPending
	case "DEPOSIT_RECEIVED", "SWAPPING":
		return types.StatusArrivingAtIntermediateHop
	case "SENDING", "SENT":
		return types.StatusArrivingAtDestination
	case "COMPLETE", "COMPLETED":
		return types.StatusCompleted
	case "FAILED", "REFUNDED":
		return types.StatusFailed
	default:
		return types.StatusUnknown
	}
}

func (b *Backend) Status(ctx context.Context, transfers []*types.OngoingTransfer) ([]backend.StatusRecord, error) {
	var (
		mu      sync.Mutex
		records []backend.StatusRecord
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusConcurrency)
	for _, t := range transfers {
		channelID := t.Correlation.MessageID
		if channelID == "" {
			continue
		}
		g.Go(func() error {
			st, err := b.client.GetSwapStatus(gctx, channelID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("swap status of %s: %w", channelID, err))
				return nil
			}
			corr := types.Correlation{MessageHash: st.DepositTxHash, MessageID: channelID}
			detail := st.State
			if st.Error != "" {
				detail = st.State + ": " + st.Error
			}
			records = append(records, backend.StatusRecord{
				Correlation:  corr,
				Status:       MapStatus(st.State),
				Detail:       detail,
				ExplorerLink: b.ExplorerLink(corr),
			})
			return nil
		})
	}
	_ = g.Wait()
	return records, errors.Join(errs...)
}

func (b *Backend) ExplorerLink(c types.Correlation) string {
	if b.explorerURL == "" || c.MessageID == "" {
		return ""
	}
	return fmt.Sprintf(b.explorerURL, c.MessageID)
}
