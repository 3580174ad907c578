// Package estimate computes how much the recipient receives.
package estimate

import (
	"context"
	"fmt"
	"math/big"

	"gomultibridge/backend"
	"gomultibridge/registry"
	"gomultibridge/types"
)

type Estimator struct {
	registry registry.Lookup
	backends backend.Set
}

func New(reg registry.Lookup, backends backend.Set) *Estimator {
	return &Estimator{registry: reg, backends: backends}
}

// NeedsFees tells whether EstimateOutput for params consumes the fee schedule
func (e *Estimator) NeedsFees(params types.TransferParams) bool {
	route, err := e.registry.Resolve(params.SourceChain, params.DestinationChain, params.SourceToken)
	if err != nil {
		return false
	}
	return !params.IsSwap() && backend.Kind(route.Backend) != backend.SettlementSwap
}

// EstimateOutput returns the recipient amount in the destination token's
// smallest unit. Same-token transfers subtract the fee legs paid in the
// source token; swaps and settlement routes take the backend's quote as is.
func (e *Estimator) EstimateOutput(ctx context.Context, params types.TransferParams, fees []types.FeeLeg) (*big.Int, error) {
	if params.Amount == nil {
		return nil, types.NewError(types.ErrCodeInvalidParams, "amount is required", nil)
	}
	route, err := e.registry.Resolve(params.SourceChain, params.DestinationChain, params.SourceToken)
	if err != nil {
		return nil, err
	}
	kind := backend.Kind(route.Backend)

	switch {
	case kind == backend.SettlementSwap:
	case params.IsSwap() && kind == backend.RelayBridge:
		return nil, types.NewError(types.ErrCodeRouteUnsupported, "relay bridge cannot swap tokens", nil)
	case !params.IsSwap():
		return Subtract(params.Amount, params.SourceToken, fees), nil
	}

	b, err := e.backends.Get(route.Backend)
	if err != nil {
		return nil, err
	}
	out, err := b.EstimateOutput(ctx, params)
	if err != nil {
		if types.ErrorCode(err) != "" {
			return nil, err
		}
		return nil, types.NewError(types.ErrCodeQuoteFailed, fmt.Sprintf("output quote failed: %v", err), err)
	}
	return out, nil
}

// Subtract returns amount minus every leg paid in token, never below zero
func Subtract(amount *big.Int, token string, fees []types.FeeLeg) *big.Int {
	out := new(big.Int).Set(amount)
	for _, leg := range fees {
		if leg.Amount.Token == token && leg.Amount.Value != nil {
			out.Sub(out, leg.Amount.Value)
		}
	}
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}
