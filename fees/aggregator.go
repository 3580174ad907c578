package fees

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"gomultibridge/backend"
	"gomultibridge/logger"
	"gomultibridge/metrics"
	"gomultibridge/prices"
	"gomultibridge/registry"
	"gomultibridge/types"
)

// Aggregator produces the normalized fee schedule of a transfer
type Aggregator struct {
	registry registry.Lookup
	backends backend.Set
	balances BalanceSource
	prices   prices.Oracle
	log      logger.Logger
	metrics  metrics.Recorder
}

func NewAggregator(reg registry.Lookup, backends backend.Set, balances BalanceSource, oracle prices.Oracle, log logger.Logger, rec metrics.Recorder) *Aggregator {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Aggregator{
		registry: reg,
		backends: backends,
		balances: balances,
		prices:   oracle,
		log:      log,
		metrics:  rec,
	}
}

// ComputeFees returns origin, hop and destination legs in that order. It
// has no side effects; any failure discards every leg.
func (a *Aggregator) ComputeFees(ctx context.Context, params types.TransferParams) ([]types.FeeLeg, error) {
	route, err := a.registry.Resolve(params.SourceChain, params.DestinationChain, params.SourceToken)
	if err != nil {
		return nil, err
	}
	b, err := a.backends.Get(route.Backend)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	labels := map[string]string{"backend": route.Backend}
	a.metrics.IncCounter(metrics.QuoteRequested, labels)

	legs, err := b.QuoteFees(ctx, params)
	a.metrics.ObserveLatency("quote_fees", time.Since(start), labels)
	if err != nil {
		a.metrics.IncCounter(metrics.QuoteFailed, labels)
		return nil, quoteError(err)
	}
	if len(legs) == 0 {
		a.metrics.IncCounter(metrics.QuoteFailed, labels)
		return nil, types.NewError(types.ErrCodeQuoteFailed, "backend returned an empty fee schedule", nil)
	}

	out := make([]types.FeeLeg, len(legs))
	copy(out, legs)

	a.enforcePrincipal(ctx, out, params)
	a.priceLegs(out)

	return out, nil
}

func (a *Aggregator) enforcePrincipal(ctx context.Context, legs []types.FeeLeg, params types.TransferParams) {
	affected := false
	for _, leg := range legs {
		if leg.Chain == params.SourceChain && leg.Amount.Token == params.SourceToken && leg.Sufficiency == types.Sufficient {
			affected = true
			break
		}
	}
	if !affected {
		return
	}

	var balance *big.Int
	chain, chainOK := a.registry.Chain(params.SourceChain)
	token, tokenOK := a.registry.Token(params.SourceToken)
	if a.balances != nil && chainOK && tokenOK {
		b, err := a.balances.Balance(ctx, chain, token, params.Sender)
		if err != nil {
			a.log.Warn("cannot read sender balance, fee sufficiency undetermined", map[string]any{
				"chain": params.SourceChain, "token": params.SourceToken, "error": err,
			})
		} else {
			balance = b
		}
	}
	EnforcePrincipal(legs, params, balance)
}

func (a *Aggregator) priceLegs(legs []types.FeeLeg) {
	if a.prices == nil {
		return
	}
	for i := range legs {
		if legs[i].Amount.USD.Valid {
			continue
		}
		token, ok := a.registry.Token(legs[i].Amount.Token)
		if !ok {
			continue
		}
		legs[i].Amount.USD = a.prices.USD(token.ID, token.Decimals, legs[i].Amount.Value)
	}
}

func quoteError(err error) error {
	if types.ErrorCode(err) != "" {
		return err
	}
	return types.NewError(types.ErrCodeQuoteFailed, fmt.Sprintf("fee quote failed: %v", err), err)
}
