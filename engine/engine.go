// Package engine owns the transfer components and is the single entry
// point for callers: quote, submit and list.
package engine

import (
	"context"
	"math/big"
	"time"

	"gomultibridge/estimate"
	"gomultibridge/fees"
	"gomultibridge/registry"
	"gomultibridge/storage"
	"gomultibridge/submission"
	"gomultibridge/tracking"
	"gomultibridge/types"

	"golang.org/x/sync/errgroup"
)

type Quote struct {
	Params  types.TransferParams `json:"params"`
	Backend string               `json:"backend"`
	Fees    []types.FeeLeg       `json:"fees"`
	Output  *big.Int             `json:"output"`
}

type State struct {
	Ongoing    int            `json:"ongoing"`
	Completed  int            `json:"completed"`
	Reconciler tracking.Stats `json:"reconciler"`
	At         time.Time      `json:"at"`
}

type Engine struct {
	registry   registry.Lookup
	fees       *fees.Aggregator
	estimator  *estimate.Estimator
	machine    *submission.Machine
	store      storage.TransferStore
	reconciler *tracking.Reconciler
}

func New(reg registry.Lookup, agg *fees.Aggregator, est *estimate.Estimator, machine *submission.Machine, store storage.TransferStore, rec *tracking.Reconciler) *Engine {
	return &Engine{
		registry:   reg,
		fees:       agg,
		estimator:  est,
		machine:    machine,
		store:      store,
		reconciler: rec,
	}
}

// Quote computes fees and output concurrently. A same-token output
// estimate is derived from the fee schedule once it is known.
func (e *Engine) Quote(ctx context.Context, params types.TransferParams) (*Quote, error) {
	if err := submission.ValidateParams(e.registry, params); err != nil {
		return nil, err
	}
	route, err := e.registry.Resolve(params.SourceChain, params.DestinationChain, params.SourceToken)
	if err != nil {
		return nil, err
	}

	var (
		legs   []types.FeeLeg
		output *big.Int
	)
	feesReady := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(feesReady)
		var err error
		legs, err = e.fees.ComputeFees(gctx, params)
		return err
	})
	g.Go(func() error {
		var scheduled []types.FeeLeg
		if e.estimator.NeedsFees(params) {
			select {
			case <-feesReady:
			case <-gctx.Done():
				return gctx.Err()
			}
			if legs == nil {
				// the fee goroutine failed and reported it
				return nil
			}
			scheduled = legs
		}
		var err error
		output, err = e.estimator.EstimateOutput(gctx, params, scheduled)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Quote{Params: params, Backend: route.Backend, Fees: legs, Output: output}, nil
}

// Submit starts a transfer; fees from a previous quote may be attached to
// params and are stored with the transfer
func (e *Engine) Submit(ctx context.Context, params types.TransferParams) <-chan submission.Event {
	return e.machine.Submit(ctx, params)
}

func (e *Engine) ListOngoing(ctx context.Context) ([]*types.OngoingTransfer, error) {
	return e.store.ListOngoing(ctx)
}

func (e *Engine) ListCompleted(ctx context.Context) ([]*types.CompletedTransfer, error) {
	return e.store.ListCompleted(ctx)
}

// Track runs the reconciler until ctx ends
func (e *Engine) Track(ctx context.Context) {
	e.reconciler.Run(ctx)
}

func (e *Engine) State(ctx context.Context) (State, error) {
	ongoing, err := e.store.ListOngoing(ctx)
	if err != nil {
		return State{}, err
	}
	completed, err := e.store.ListCompleted(ctx)
	if err != nil {
		return State{}, err
	}
	return State{
		Ongoing:    len(ongoing),
		Completed:  len(completed),
		Reconciler: e.reconciler.Stats(),
		At:         time.Now().UTC(),
	}, nil
}
