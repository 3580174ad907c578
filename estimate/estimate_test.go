package estimate

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"gomultibridge/backend"
	"gomultibridge/backend/backendtest"
	"gomultibridge/registry"
	"gomultibridge/types"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Estimator, *backendtest.Fake, *backendtest.Fake) {
	t.Helper()
	reg, err := registry.New(
		[]types.Chain{
			{ID: "relay-a", Family: types.FamilyRelayA, NativeToken: "dot"},
			{ID: "hub-a", Family: types.FamilyRelayA, NativeToken: "dot"},
			{ID: "hub-b", Family: types.FamilyRelayB, NativeToken: "ksm"},
			{ID: "ethereum", Family: types.FamilyEVM, NativeToken: "eth"},
			{ID: "settlement", Family: types.FamilySettlement, NativeToken: "flip"},
		},
		[]types.Token{{ID: "dot"}, {ID: "ksm"}, {ID: "usdt"}, {ID: "eth"}, {ID: "usdc"}},
		[]registry.Route{
			{Source: "relay-a", Destination: "hub-a", Backend: "routed-messaging"},
			{Source: "hub-a", Destination: "hub-b", Backend: "relay-bridge"},
			{Source: "ethereum", Destination: "settlement", Backend: "settlement-swap"},
		},
	)
	require.NoError(t, err)
	routed := &backendtest.Fake{KindValue: backend.RoutedMessaging, Output: big.NewInt(777)}
	settle := &backendtest.Fake{KindValue: backend.SettlementSwap, Output: big.NewInt(4_200_000)}
	return New(reg, backend.Set{
		backend.RoutedMessaging: routed,
		backend.SettlementSwap:  settle,
		backend.RelayBridge:     &backendtest.Fake{KindValue: backend.RelayBridge},
	}), routed, settle
}

func transfer(src, dst, srcToken, dstToken string, amount int64) types.TransferParams {
	return types.TransferParams{
		SourceChain: src, DestinationChain: dst,
		SourceToken: srcToken, DestinationToken: dstToken,
		Amount: big.NewInt(amount), Sender: "alice", Recipient: "bob",
	}
}

func TestSameTokenSubtractsSourceTokenFees(t *testing.T) {
	e, routed, _ := setup(t)
	fees := []types.FeeLeg{
		{Title: types.FeeExecution, Chain: "relay-a", Amount: types.Amount{Token: "dot", Value: big.NewInt(30)}},
		{Title: types.FeeDelivery, Chain: "hub-a", Amount: types.Amount{Token: "dot", Value: big.NewInt(20)}},
		{Title: types.FeeRouting, Chain: "hub-b", Amount: types.Amount{Token: "ksm", Value: big.NewInt(99)}},
	}
	p := transfer("relay-a", "hub-a", "dot", "dot", 1000)
	require.True(t, e.NeedsFees(p))

	out, err := e.EstimateOutput(context.Background(), p, fees)
	require.NoError(t, err)
	require.Equal(t, int64(950), out.Int64())
	require.Zero(t, routed.Count("EstimateOutput"))
}

func TestSameTokenFloorsAtZero(t *testing.T) {
	e, _, _ := setup(t)
	fees := []types.FeeLeg{{Amount: types.Amount{Token: "dot", Value: big.NewInt(2000)}}}

	out, err := e.EstimateOutput(context.Background(), transfer("relay-a", "hub-a", "dot", "dot", 1000), fees)
	require.NoError(t, err)
	require.Equal(t, 0, out.Sign())
}

func TestSettlementUsesEgressAmount(t *testing.T) {
	e, _, settle := setup(t)
	fees := []types.FeeLeg{{Title: types.FeeBroker, Amount: types.Amount{Token: "eth", Value: big.NewInt(1_000_000)}}}
	p := transfer("ethereum", "settlement", "eth", "usdc", 1_000_000_000)
	require.False(t, e.NeedsFees(p))

	out, err := e.EstimateOutput(context.Background(), p, fees)
	require.NoError(t, err)
	require.Equal(t, int64(4_200_000), out.Int64())
	require.Equal(t, 1, settle.Count("EstimateOutput"))
}

func TestRoutedSwapAsksBackend(t *testing.T) {
	e, routed, _ := setup(t)
	out, err := e.EstimateOutput(context.Background(), transfer("relay-a", "hub-a", "dot", "usdt", 1000), nil)
	require.NoError(t, err)
	require.Equal(t, int64(777), out.Int64())

	routed.OutputErr = errors.New("no pool")
	_, err = e.EstimateOutput(context.Background(), transfer("relay-a", "hub-a", "dot", "usdt", 1000), nil)
	require.ErrorIs(t, err, types.ErrQuoteFailed)
}

func TestRelaySwapUnsupported(t *testing.T) {
	e, _, _ := setup(t)
	_, err := e.EstimateOutput(context.Background(), transfer("hub-a", "hub-b", "dot", "ksm", 1000), nil)
	require.ErrorIs(t, err, types.ErrRouteUnsupported)
}
