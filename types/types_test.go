package types

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusRank(t *testing.T) {
	require.Less(t, StatusPending.Rank(), StatusArrivingAtIntermediateHop.Rank())
	require.Less(t, StatusArrivingAtIntermediateHop.Rank(), StatusArrivingAtDestination.Rank())
	require.Less(t, StatusArrivingAtDestination.Rank(), StatusCompleted.Rank())
	require.Equal(t, StatusCompleted.Rank(), StatusFailed.Rank())
	require.Zero(t, StatusUnknown.Rank())

	require.True(t, StatusFailed.IsTerminal())
	require.False(t, StatusArrivingAtDestination.IsTerminal())
}

func TestCorrelationMerge(t *testing.T) {
	c := Correlation{MessageHash: "0xa"}
	merged := c.Merge(Correlation{MessageHash: "0xb", MessageID: "m1"})
	require.Equal(t, Correlation{MessageHash: "0xa", MessageID: "m1"}, merged)
	require.True(t, Correlation{}.Empty())
	require.False(t, merged.Empty())
}

func TestCloneSharesNothing(t *testing.T) {
	at := time.Now()
	orig := &OngoingTransfer{
		ID: "t1",
		Params: TransferParams{
			Amount: big.NewInt(1000),
			Fees:   []FeeLeg{{Title: FeeExecution, Amount: Amount{Token: "dot", Value: big.NewInt(5)}}},
		},
		FinalizedAt: &at,
	}
	c := orig.Clone()
	c.Params.Amount.SetInt64(1)
	c.Params.Fees[0].Amount.Value.SetInt64(1)
	c.Params.Fees[0].Title = FeeDelivery
	*c.FinalizedAt = at.Add(time.Hour)

	require.Equal(t, int64(1000), orig.Params.Amount.Int64())
	require.Equal(t, int64(5), orig.Params.Fees[0].Amount.Value.Int64())
	require.Equal(t, FeeExecution, orig.Params.Fees[0].Title)
	require.Equal(t, at, *orig.FinalizedAt)
}

func TestTransferErrorMatchesByCode(t *testing.T) {
	cause := errors.New("socket closed")
	err := fmt.Errorf("quote: %w", NewError(ErrCodeQuoteFailed, "fee service down", cause))

	require.ErrorIs(t, err, ErrQuoteFailed)
	require.NotErrorIs(t, err, ErrSubmission)
	require.ErrorIs(t, err, cause)
	require.Equal(t, ErrCodeQuoteFailed, ErrorCode(err))
	require.Empty(t, ErrorCode(cause))
	require.Equal(t, "quote: quote_failed: fee service down: socket closed", err.Error())
}
