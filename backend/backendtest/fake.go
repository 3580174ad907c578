// Package backendtest provides a scriptable backend for tests.
package backendtest

import (
	"context"
	"math/big"
	"sync"

	"gomultibridge/backend"
	"gomultibridge/types"
)

// Fake returns the configured values and records every call in order
type Fake struct {
	KindValue backend.Kind

	Fees         []types.FeeLeg
	FeesErr      error
	Output       *big.Int
	OutputErr    error
	DryRunResult backend.DryRunResult
	DryRunErr    error
	BuildErr     error
	BroadcastErr error
	Submitted    types.Correlation
	Ack          backend.Ack
	AckErr       error
	// when set, Wait blocks until it is closed
	AckGate   chan struct{}
	Records   []backend.StatusRecord
	StatusErr error

	mu    sync.Mutex
	calls []string
}

func (f *Fake) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

// Calls returns the method names invoked so far
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) Count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *Fake) Kind() backend.Kind { return f.KindValue }

func (f *Fake) Prepare(context.Context, types.TransferParams) error {
	f.record("Prepare")
	return nil
}

func (f *Fake) QuoteFees(context.Context, types.TransferParams) ([]types.FeeLeg, error) {
	f.record("QuoteFees")
	if f.FeesErr != nil {
		return nil, f.FeesErr
	}
	out := make([]types.FeeLeg, len(f.Fees))
	copy(out, f.Fees)
	return out, nil
}

func (f *Fake) EstimateOutput(context.Context, types.TransferParams) (*big.Int, error) {
	f.record("EstimateOutput")
	return f.Output, f.OutputErr
}

func (f *Fake) DryRun(context.Context, types.TransferParams) (backend.DryRunResult, error) {
	f.record("DryRun")
	return f.DryRunResult, f.DryRunErr
}

func (f *Fake) BuildTx(_ context.Context, params types.TransferParams) (backend.UnsignedTx, error) {
	f.record("BuildTx")
	if f.BuildErr != nil {
		return backend.UnsignedTx{}, f.BuildErr
	}
	return backend.UnsignedTx{Chain: params.SourceChain, From: params.Sender, Payload: []byte("payload")}, nil
}

type submission struct {
	f *Fake
}

func (s submission) Correlation() types.Correlation { return s.f.Submitted }

func (s submission) Wait(ctx context.Context) (backend.Ack, error) {
	s.f.record("Wait")
	if s.f.AckGate != nil {
		select {
		case <-s.f.AckGate:
		case <-ctx.Done():
			return backend.Ack{}, ctx.Err()
		}
	}
	return s.f.Ack, s.f.AckErr
}

func (f *Fake) Broadcast(context.Context, backend.SignedTx) (backend.Submission, error) {
	f.record("Broadcast")
	if f.BroadcastErr != nil {
		return nil, f.BroadcastErr
	}
	return submission{f: f}, nil
}

func (f *Fake) Status(context.Context, []*types.OngoingTransfer) ([]backend.StatusRecord, error) {
	f.record("Status")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.StatusRecord(nil), f.Records...), f.StatusErr
}

// SetRecords replaces the status records returned by later polls
func (f *Fake) SetRecords(records []backend.StatusRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Records = records
}

func (f *Fake) ExplorerLink(c types.Correlation) string {
	if c.MessageHash == "" {
		return ""
	}
	return "https://explorer.test/" + c.MessageHash
}
