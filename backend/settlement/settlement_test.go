package settlement

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"gomultibridge/backend"
	"gomultibridge/registry"
	"gomultibridge/types"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	quote     Quote
	quoteErr  error
	channel   DepositChannel
	statuses  map[string]SwapStatus
	submitted string
}

func (f *fakeClient) GetQuote(context.Context, QuoteRequest) (Quote, error) {
	return f.quote, f.quoteErr
}

func (f *fakeClient) OpenDepositChannel(context.Context, ChannelRequest) (DepositChannel, error) {
	return f.channel, nil
}

func (f *fakeClient) SubmitDeposit(_ context.Context, channelID string, _, _ []byte) (string, error) {
	f.submitted = channelID
	return "0xdeposit", nil
}

func (f *fakeClient) GetSwapStatus(_ context.Context, channelID string) (SwapStatus, error) {
	st, ok := f.statuses[channelID]
	if !ok {
		return SwapStatus{}, errors.New("404")
	}
	return st, nil
}

type fakeChain struct {
	balance *big.Int
	cost    *big.Int
	err     error
}

func (f fakeChain) Balance(context.Context, types.Chain, types.Token, string) (*big.Int, error) {
	return f.balance, f.err
}

func (f fakeChain) TransferCost(context.Context, types.Chain, types.Token) (*big.Int, error) {
	return f.cost, nil
}

func testBackend(t *testing.T, client Client, chain fakeChain) *Backend {
	t.Helper()
	reg, err := registry.New(
		[]types.Chain{
			{ID: "ethereum", Family: types.FamilyEVM, NativeToken: "eth"},
			{ID: "settlement", Family: types.FamilySettlement, NativeToken: "flip"},
		},
		[]types.Token{{ID: "eth", Decimals: 18}, {ID: "usdc", Decimals: 6}, {ID: "flip", Decimals: 18}},
		[]registry.Route{{Source: "ethereum", Destination: "settlement", Backend: "settlement-swap"}},
	)
	require.NoError(t, err)
	return New(client, reg, chain, "https://scan.test/channels/%s", nil)
}

func swap(amount int64) types.TransferParams {
	return types.TransferParams{
		SourceChain:      "ethereum",
		DestinationChain: "settlement",
		SourceToken:      "eth",
		DestinationToken: "usdc",
		Amount:           big.NewInt(amount),
		Sender:           "0xsender",
		Recipient:        "0xrecipient",
	}
}

func quote() Quote {
	return Quote{
		DepositAmount: "1000000000000000000",
		EgressAmount:  "4200000",
		IncludedFees: []IncludedFee{
			{Type: "INGRESS", Asset: "eth", Amount: "1000"},
			{Type: "NETWORK", Chain: "settlement", Asset: "usdc", Amount: "2000"},
			{Type: "BROKER", Chain: "settlement", Asset: "usdc", Amount: "300"},
			{Type: "EGRESS", Asset: "usdc", Amount: "4000"},
		},
	}
}

func TestQuoteFeesLocalLegFirst(t *testing.T) {
	b := testBackend(t, &fakeClient{quote: quote()}, fakeChain{balance: big.NewInt(2000), cost: big.NewInt(500)})

	legs, err := b.QuoteFees(context.Background(), swap(1000))
	require.NoError(t, err)
	require.Len(t, legs, 5)

	require.Equal(t, types.FeeTransfer, legs[0].Title)
	require.Equal(t, "ethereum", legs[0].Chain)
	require.Equal(t, "eth", legs[0].Amount.Token)
	require.Equal(t, types.Sufficient, legs[0].Sufficiency)

	titles := []types.FeeTitle{types.FeeDeposit, types.FeeSwap, types.FeeBroker, types.FeeDelivery}
	for i, title := range titles {
		require.Equal(t, title, legs[i+1].Title)
		require.Equal(t, types.Sufficient, legs[i+1].Sufficiency)
	}
	require.Equal(t, "ethereum", legs[1].Chain)
	require.Equal(t, "settlement", legs[4].Chain)
}

func TestQuoteFeesCountsPrincipal(t *testing.T) {
	// 1000 deposited + 500 gas > 1200
	b := testBackend(t, &fakeClient{quote: quote()}, fakeChain{balance: big.NewInt(1200), cost: big.NewInt(500)})

	legs, err := b.QuoteFees(context.Background(), swap(1000))
	require.NoError(t, err)
	require.Equal(t, types.Insufficient, legs[0].Sufficiency)
}

func TestQuoteFeesUnreadableBalance(t *testing.T) {
	b := testBackend(t, &fakeClient{quote: quote()}, fakeChain{cost: big.NewInt(500), err: errors.New("rpc down")})

	legs, err := b.QuoteFees(context.Background(), swap(1000))
	require.NoError(t, err)
	require.Equal(t, types.Undetermined, legs[0].Sufficiency)
}

func TestQuoteFailureDiscardsLegs(t *testing.T) {
	b := testBackend(t, &fakeClient{quoteErr: errors.New("no liquidity")}, fakeChain{balance: big.NewInt(1), cost: big.NewInt(1)})

	legs, err := b.QuoteFees(context.Background(), swap(1000))
	require.Error(t, err)
	require.Nil(t, legs)
}

func TestEstimateOutputIsEgress(t *testing.T) {
	b := testBackend(t, &fakeClient{quote: quote()}, fakeChain{})

	out, err := b.EstimateOutput(context.Background(), swap(1000))
	require.NoError(t, err)
	require.Equal(t, "4200000", out.String())
}

func TestDepositFlow(t *testing.T) {
	client := &fakeClient{channel: DepositChannel{ID: "123-Ethereum-9", DepositAddress: "0xdeposit", Payload: []byte("tx")}}
	b := testBackend(t, client, fakeChain{})
	ctx := context.Background()

	tx, err := b.BuildTx(ctx, swap(1000))
	require.NoError(t, err)
	require.Equal(t, "123-Ethereum-9", tx.Meta[MetaChannelID])

	sub, err := b.Broadcast(ctx, backend.SignedTx{Unsigned: tx, Signature: []byte{1}})
	require.NoError(t, err)
	require.Equal(t, "123-Ethereum-9", client.submitted)
	require.Equal(t, "123-Ethereum-9", sub.Correlation().MessageID)

	ack, err := sub.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "0xdeposit", ack.Correlation.MessageHash)
	require.Equal(t, "https://scan.test/channels/123-Ethereum-9", b.ExplorerLink(ack.Correlation))
}

func TestBroadcastNeedsChannel(t *testing.T) {
	b := testBackend(t, &fakeClient{}, fakeChain{})
	_, err := b.Broadcast(context.Background(), backend.SignedTx{})
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	client := &fakeClient{statuses: map[string]SwapStatus{
		"c1": {State: "COMPLETE", DepositTxHash: "0xd1"},
		"c2": {State: "SWAPPING"},
	}}
	b := testBackend(t, client, fakeChain{})

	records, err := b.Status(context.Background(), []*types.OngoingTransfer{
		{ID: "1", Correlation: types.Correlation{MessageID: "c1"}},
		{ID: "2", Correlation: types.Correlation{MessageID: "c2"}},
		{ID: "3", Correlation: types.Correlation{MessageID: "c3"}},
	})
	require.Error(t, err)
	require.Len(t, records, 2)

	got := map[string]types.TrackingStatus{}
	for _, r := range records {
		got[r.Correlation.MessageID] = r.Status
	}
	require.Equal(t, types.StatusCompleted, got["c1"])
	require.Equal(t, types.StatusArrivingAtIntermediateHop, got["c2"])
}

func TestMapStatus(t *testing.T) {
	require.Equal(t, types.StatusPending, MapStatus("AWAITING_DEPOSIT"))
	require.Equal(t, types.StatusArrivingAtDestination, MapStatus("sending"))
	require.Equal(t, types.StatusFailed, MapStatus("FAILED"))
	require.Equal(t, types.StatusUnknown, MapStatus(""))
}
