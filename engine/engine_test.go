package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"gomultibridge/backend"
	"gomultibridge/backend/backendtest"
	"gomultibridge/estimate"
	"gomultibridge/fees"
	"gomultibridge/prices"
	"gomultibridge/registry"
	"gomultibridge/signer"
	"gomultibridge/storage"
	"gomultibridge/submission"
	"gomultibridge/tracking"
	"gomultibridge/types"

	"github.com/stretchr/testify/require"
)

type okSigner struct{}

func (okSigner) Sign(_ context.Context, tx backend.UnsignedTx) (backend.SignedTx, error) {
	return backend.SignedTx{Unsigned: tx, Signature: []byte("sig")}, nil
}

type rejectingSigner struct{}

func (rejectingSigner) Sign(context.Context, backend.UnsignedTx) (backend.SignedTx, error) {
	return backend.SignedTx{}, signer.ErrUserRejected
}

type fixture struct {
	engine  *Engine
	routed  *backendtest.Fake
	settle  *backendtest.Fake
	store   *storage.FileStore
	tracker *tracking.Reconciler
}

func newFixture(t *testing.T, sgn signer.Signer) *fixture {
	t.Helper()
	reg, err := registry.New(
		[]types.Chain{
			{ID: "relay-a", Family: types.FamilyRelayA, NativeToken: "dot"},
			{ID: "hub-a", Family: types.FamilyRelayA, NativeToken: "dot"},
			{ID: "ethereum", Family: types.FamilyEVM, NativeToken: "eth"},
			{ID: "settlement", Family: types.FamilySettlement, NativeToken: "flip"},
		},
		[]types.Token{{ID: "dot", Decimals: 10}, {ID: "eth", Decimals: 18}, {ID: "usdc", Decimals: 6}},
		[]registry.Route{
			{Source: "relay-a", Destination: "hub-a", Backend: "routed-messaging"},
			{Source: "ethereum", Destination: "settlement", Backend: "settlement-swap"},
		},
	)
	require.NoError(t, err)

	f := &fixture{
		routed: &backendtest.Fake{
			KindValue: backend.RoutedMessaging,
			Fees: []types.FeeLeg{
				{Title: types.FeeExecution, Chain: "relay-a", Amount: types.Amount{Token: "dot", Value: big.NewInt(30)}, Sufficiency: types.Undetermined},
				{Title: types.FeeDelivery, Chain: "hub-a", Amount: types.Amount{Token: "dot", Value: big.NewInt(20)}, Sufficiency: types.Undetermined},
			},
			DryRunResult: backend.DryRunResult{Success: true},
			Submitted:    types.Correlation{MessageHash: "0xm"},
			Ack:          backend.Ack{Correlation: types.Correlation{MessageHash: "0xm"}, At: time.Now()},
		},
		settle: &backendtest.Fake{
			KindValue: backend.SettlementSwap,
			Fees: []types.FeeLeg{
				{Title: types.FeeTransfer, Chain: "ethereum", Amount: types.Amount{Token: "eth", Value: big.NewInt(21000)}, Sufficiency: types.Sufficient},
				{Title: types.FeeBroker, Chain: "settlement", Amount: types.Amount{Token: "usdc", Value: big.NewInt(3000)}, Sufficiency: types.Sufficient},
			},
			Output: big.NewInt(4_200_000),
		},
		store: storage.NewMemoryStore(),
	}
	backends := backend.Set{backend.RoutedMessaging: f.routed, backend.SettlementSwap: f.settle}
	table, err := prices.NewTable(map[string]string{"dot": "5"})
	require.NoError(t, err)

	f.tracker = tracking.New(f.store, backends)
	f.engine = New(
		reg,
		fees.NewAggregator(reg, backends, nil, table, nil, nil),
		estimate.New(reg, backends),
		submission.New(reg, backends, f.store, sgn),
		f.store,
		f.tracker,
	)
	return f
}

func dotTransfer() types.TransferParams {
	return types.TransferParams{
		SourceChain: "relay-a", DestinationChain: "hub-a",
		SourceToken: "dot", DestinationToken: "dot",
		Amount: big.NewInt(1000), Sender: "alice", Recipient: "bob",
	}
}

func TestQuoteSameTokenSubtractsFees(t *testing.T) {
	f := newFixture(t, okSigner{})

	q, err := f.engine.Quote(context.Background(), dotTransfer())
	require.NoError(t, err)
	require.Equal(t, "routed-messaging", q.Backend)
	require.Len(t, q.Fees, 2)
	require.Equal(t, int64(950), q.Output.Int64())
	require.True(t, q.Fees[0].Amount.USD.Valid)
	require.Zero(t, f.routed.Count("EstimateOutput"))
}

func TestQuoteSettlementUsesEgress(t *testing.T) {
	f := newFixture(t, okSigner{})
	p := types.TransferParams{
		SourceChain: "ethereum", DestinationChain: "settlement",
		SourceToken: "eth", DestinationToken: "usdc",
		Amount:    big.NewInt(1_000_000_000_000_000_000),
		Sender:    "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Recipient: "settlement-recipient",
	}

	q, err := f.engine.Quote(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, int64(4_200_000), q.Output.Int64())
	require.Len(t, q.Fees, 2)
}

func TestQuoteFailsAsAWhole(t *testing.T) {
	f := newFixture(t, okSigner{})
	f.routed.FeesErr = errors.New("xcm fee service down")

	q, err := f.engine.Quote(context.Background(), dotTransfer())
	require.ErrorIs(t, err, types.ErrQuoteFailed)
	require.Nil(t, q)
}

func TestQuoteUnsupportedRoute(t *testing.T) {
	f := newFixture(t, okSigner{})
	p := dotTransfer()
	p.SourceChain, p.DestinationChain = "hub-a", "relay-a"

	_, err := f.engine.Quote(context.Background(), p)
	require.ErrorIs(t, err, types.ErrRouteUnsupported)
}

func TestSubmitThenTrackToCompletion(t *testing.T) {
	f := newFixture(t, okSigner{})
	ctx := context.Background()

	var last submission.Event
	for e := range f.engine.Submit(ctx, dotTransfer()) {
		last = e
	}
	require.Equal(t, submission.OutcomeSuccess, last.Outcome)

	ongoing, err := f.engine.ListOngoing(ctx)
	require.NoError(t, err)
	require.Len(t, ongoing, 1)

	f.routed.SetRecords([]backend.StatusRecord{{Correlation: types.Correlation{MessageHash: "0xm"}, Status: types.StatusCompleted}})
	f.tracker.Pass(ctx)

	ongoing, _ = f.engine.ListOngoing(ctx)
	require.Empty(t, ongoing)
	completed, err := f.engine.ListCompleted(ctx)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.Equal(t, last.TransferID, completed[0].Transfer.ID)

	state, err := f.engine.State(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, state.Ongoing)
	require.Equal(t, 1, state.Completed)
	require.EqualValues(t, 1, state.Reconciler.Passes)
}

func TestRejectedSubmitLeavesNoRecord(t *testing.T) {
	f := newFixture(t, rejectingSigner{})
	ctx := context.Background()

	var last submission.Event
	for e := range f.engine.Submit(ctx, dotTransfer()) {
		last = e
	}
	require.Equal(t, submission.OutcomeCancelled, last.Outcome)

	ongoing, _ := f.engine.ListOngoing(ctx)
	require.Empty(t, ongoing)
}
