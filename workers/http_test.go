package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gomultibridge/engine"
	"gomultibridge/registry"
	"gomultibridge/submission"
	"gomultibridge/types"
	"gomultibridge/workers/handlers"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	quote    *engine.Quote
	quoteErr error
	params   types.TransferParams
	events   []submission.Event
	ongoing  []*types.OngoingTransfer
	// closed when a Submit ctx is cancelled
	cancelled chan struct{}
}

func (s *stubEngine) Quote(_ context.Context, p types.TransferParams) (*engine.Quote, error) {
	s.params = p
	return s.quote, s.quoteErr
}

func (s *stubEngine) Submit(ctx context.Context, p types.TransferParams) <-chan submission.Event {
	s.params = p
	out := make(chan submission.Event, len(s.events)+1)
	if s.cancelled != nil {
		go func() {
			defer close(out)
			out <- submission.Event{State: submission.StateLoading}
			<-ctx.Done()
			close(s.cancelled)
			out <- submission.Event{State: submission.StateIdle, Outcome: submission.OutcomeCancelled}
		}()
		return out
	}
	for _, e := range s.events {
		out <- e
	}
	close(out)
	return out
}

func (s *stubEngine) ListOngoing(context.Context) ([]*types.OngoingTransfer, error) {
	return s.ongoing, nil
}

func (s *stubEngine) ListCompleted(context.Context) ([]*types.CompletedTransfer, error) {
	return nil, errors.New("store down")
}

func (s *stubEngine) State(context.Context) (engine.State, error) {
	return engine.State{Ongoing: len(s.ongoing)}, nil
}

type stubBalances struct{}

func (stubBalances) Balance(_ context.Context, chain types.Chain, token types.Token, owner string) (*big.Int, error) {
	if owner == "broken" {
		return nil, errors.New("rpc down")
	}
	return big.NewInt(123456789), nil
}

func newServer(t *testing.T, eng *stubEngine) *httptest.Server {
	t.Helper()
	reg, err := registry.New(
		[]types.Chain{{ID: "ethereum", Family: types.FamilyEVM}},
		[]types.Token{{ID: "eth", Decimals: 18}},
		nil,
	)
	require.NoError(t, err)
	api := handlers.NewAPI(eng, reg, stubBalances{}, nil)
	srv := httptest.NewServer(NewRouter(api, http.NotFoundHandler()))
	t.Cleanup(srv.Close)
	return srv
}

const transferBody = `{"sourceChain":"relay-a","destinationChain":"hub-a","sourceToken":"dot","destinationToken":"dot",
"amount":"123456789012345678901234","sender":"alice","recipient":"bob"}`

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestQuoteEndpoint(t *testing.T) {
	eng := &stubEngine{quote: &engine.Quote{
		Backend: "routed-messaging",
		Fees:    []types.FeeLeg{{Title: types.FeeExecution, Chain: "relay-a", Amount: types.Amount{Token: "dot", Value: big.NewInt(50)}}},
		Output:  big.NewInt(950),
	}}
	srv := newServer(t, eng)

	resp, out := post(t, srv.URL+"/quote", transferBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "950", out["output"])
	require.Equal(t, "routed-messaging", out["backend"])
	require.Equal(t, "123456789012345678901234", eng.params.Amount.String())
}

func TestQuoteErrors(t *testing.T) {
	eng := &stubEngine{quoteErr: types.NewError(types.ErrCodeRouteUnsupported, "no backend", nil)}
	srv := newServer(t, eng)

	resp, out := post(t, srv.URL+"/quote", transferBody)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, types.ErrCodeRouteUnsupported, out["code"])

	eng.quoteErr = types.NewError(types.ErrCodeQuoteFailed, "fee quote failed", nil)
	resp, _ = post(t, srv.URL+"/quote", transferBody)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, out = post(t, srv.URL+"/quote", strings.Replace(transferBody, `"123456789012345678901234"`, `"12.5"`, 1))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "amount", out["field"])

	resp, _ = post(t, srv.URL+"/quote", "{")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitEndpoint(t *testing.T) {
	eng := &stubEngine{events: []submission.Event{
		{State: submission.StateLoading},
		{State: submission.StateSending, TransferID: "t1"},
		{State: submission.StateIdle, Outcome: submission.OutcomeSuccess, TransferID: "t1"},
	}}
	srv := newServer(t, eng)

	resp, out := post(t, srv.URL+"/submit", transferBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "t1", out["transferId"])
	require.Len(t, out["events"], 3)

	eng.events = []submission.Event{{
		State: submission.StateIdle, Outcome: submission.OutcomeError,
		Error: types.NewError(types.ErrCodeValidation, "insufficient balance", nil),
	}}
	resp, out = post(t, srv.URL+"/submit", transferBody)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "error", out["outcome"])
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/submit"
}

func TestSubmitWebsocketStreamsEvents(t *testing.T) {
	eng := &stubEngine{events: []submission.Event{
		{State: submission.StateLoading},
		{State: submission.StateSigning},
		{State: submission.StateIdle, Outcome: submission.OutcomeSuccess, TransferID: "t1"},
	}}
	srv := newServer(t, eng)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	var req handlers.TransferRequest
	require.NoError(t, json.Unmarshal([]byte(transferBody), &req))
	require.NoError(t, conn.WriteJSON(req))

	var states []submission.State
	for {
		var e submission.Event
		if err := conn.ReadJSON(&e); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		states = append(states, e.State)
	}
	require.Equal(t, []submission.State{submission.StateLoading, submission.StateSigning, submission.StateIdle}, states)
}

func TestSubmitWebsocketCancel(t *testing.T) {
	eng := &stubEngine{cancelled: make(chan struct{})}
	srv := newServer(t, eng)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	var req handlers.TransferRequest
	require.NoError(t, json.Unmarshal([]byte(transferBody), &req))
	require.NoError(t, conn.WriteJSON(req))

	var first submission.Event
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, submission.StateLoading, first.State)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "cancel"}))
	select {
	case <-eng.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("submission was not cancelled")
	}

	var last submission.Event
	require.NoError(t, conn.ReadJSON(&last))
	require.Equal(t, submission.OutcomeCancelled, last.Outcome)
}

func TestListingsAndState(t *testing.T) {
	eng := &stubEngine{ongoing: []*types.OngoingTransfer{{ID: "t1", Tracking: types.StatusPending}}}
	srv := newServer(t, eng)

	resp, err := http.Get(srv.URL + "/transfers/ongoing")
	require.NoError(t, err)
	var ongoing []types.OngoingTransfer
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ongoing))
	resp.Body.Close()
	require.Len(t, ongoing, 1)
	require.Equal(t, "t1", ongoing[0].ID)

	resp, err = http.Get(srv.URL + "/transfers/completed")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/state")
	require.NoError(t, err)
	var state engine.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	resp.Body.Close()
	require.Equal(t, 1, state.Ongoing)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBalanceEndpoint(t *testing.T) {
	srv := newServer(t, &stubEngine{})

	resp, err := http.Get(srv.URL + "/balance/ethereum/eth/0xabc")
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.Equal(t, "123456789", out["balance"])

	resp, err = http.Get(srv.URL + "/balance/solana/eth/0xabc")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/balance/ethereum/eth/broken")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
