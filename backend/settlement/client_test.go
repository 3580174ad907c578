package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPClientQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		require.Equal(t, "eth", r.URL.Query().Get("srcAsset"))
		json.NewEncoder(w).Encode(Quote{EgressAmount: "4200000", IncludedFees: []IncludedFee{{Type: "BROKER", Amount: "3"}}})
	}))
	defer srv.Close()

	q, err := NewHTTPClient(srv.URL+"/", time.Second).GetQuote(context.Background(), QuoteRequest{SourceAsset: "eth", Amount: "1"})
	require.NoError(t, err)
	require.Equal(t, "4200000", q.EgressAmount)
	require.Len(t, q.IncludedFees, 1)
}

func TestHTTPClientDeposit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/deposit-channels":
			require.Equal(t, http.MethodPost, r.Method)
			var req ChannelRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "0xrefund", req.Sender)
			json.NewEncoder(w).Encode(DepositChannel{ID: "c1", DepositAddress: "0xd", Payload: []byte("tx")})
		case "/deposit-channels/c1/deposit":
			json.NewEncoder(w).Encode(map[string]string{"txHash": "0xh"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := NewHTTPClient(srv.URL, time.Second)
	ctx := context.Background()

	ch, err := c.OpenDepositChannel(ctx, ChannelRequest{Sender: "0xrefund"})
	require.NoError(t, err)
	require.Equal(t, []byte("tx"), ch.Payload)

	hash, err := c.SubmitDeposit(ctx, "c1", ch.Payload, []byte{1})
	require.NoError(t, err)
	require.Equal(t, "0xh", hash)

	_, err = c.GetSwapStatus(ctx, "missing")
	require.ErrorContains(t, err, "status 404")
}
