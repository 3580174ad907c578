package fees

import (
	"context"
	"errors"
	"math/big"

	"gomultibridge/types"
)

type BalanceSource interface {
	Balance(ctx context.Context, chain types.Chain, token types.Token, owner string) (*big.Int, error)
}

type CostSource interface {
	TransferCost(ctx context.Context, chain types.Chain, token types.Token) (*big.Int, error)
}

type ChainReader interface {
	BalanceSource
	CostSource
}

var ErrNoReader = errors.New("no balance reader for chain family")

// Router sends EVM chains to one reader and every other family to another
type Router struct {
	EVM   ChainReader
	Other ChainReader
}

func (r Router) pick(chain types.Chain) (ChainReader, error) {
	if chain.IsEVM() {
		if r.EVM == nil {
			return nil, ErrNoReader
		}
		return r.EVM, nil
	}
	if r.Other == nil {
		return nil, ErrNoReader
	}
	return r.Other, nil
}

func (r Router) Balance(ctx context.Context, chain types.Chain, token types.Token, owner string) (*big.Int, error) {
	reader, err := r.pick(chain)
	if err != nil {
		return nil, err
	}
	return reader.Balance(ctx, chain, token, owner)
}

func (r Router) TransferCost(ctx context.Context, chain types.Chain, token types.Token) (*big.Int, error) {
	reader, err := r.pick(chain)
	if err != nil {
		return nil, err
	}
	return reader.TransferCost(ctx, chain, token)
}

// RunningTotal sets the verdict of every leg paid on chain in token: a leg
// is sufficient while principal plus the fees up to and including it fit
// in balance. principal may be nil when the transferred token is a
// different one. Legs are updated in place.
func RunningTotal(legs []types.FeeLeg, chain, token string, balance, principal *big.Int) {
	total := new(big.Int)
	if principal != nil {
		total.Set(principal)
	}
	for i := range legs {
		leg := &legs[i]
		if leg.Chain != chain || leg.Amount.Token != token || leg.Amount.Value == nil {
			continue
		}
		total.Add(total, leg.Amount.Value)
		if total.Cmp(balance) <= 0 {
			leg.Sufficiency = types.Sufficient
		} else {
			leg.Sufficiency = types.Insufficient
		}
	}
}

// EnforcePrincipal downgrades origin legs paid in the source token that
// were reported sufficient without counting the transferred amount. A nil
// balance means it could not be read, those legs become undetermined.
func EnforcePrincipal(legs []types.FeeLeg, params types.TransferParams, balance *big.Int) {
	total := new(big.Int)
	if params.Amount != nil {
		total.Set(params.Amount)
	}
	for i := range legs {
		leg := &legs[i]
		if leg.Chain != params.SourceChain || leg.Amount.Token != params.SourceToken || leg.Amount.Value == nil {
			continue
		}
		total.Add(total, leg.Amount.Value)
		if leg.Sufficiency != types.Sufficient {
			continue
		}
		if balance == nil {
			leg.Sufficiency = types.Undetermined
			continue
		}
		if total.Cmp(balance) > 0 {
			leg.Sufficiency = types.Insufficient
		}
	}
}
