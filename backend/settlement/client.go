package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the settlement network's swap service contract
type Client interface {
	GetQuote(ctx context.Context, req QuoteRequest) (Quote, error)
	OpenDepositChannel(ctx context.Context, req ChannelRequest) (DepositChannel, error)
	SubmitDeposit(ctx context.Context, channelID string, payload, signature []byte) (string, error)
	GetSwapStatus(ctx context.Context, channelID string) (SwapStatus, error)
}

type QuoteRequest struct {
	SourceChain      string
	SourceAsset      string
	DestinationChain string
	DestinationAsset string
	Amount           string
}

type IncludedFee struct {
	Type   string `json:"type"`
	Chain  string `json:"chain"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type Quote struct {
	DepositAddress string        `json:"depositAddress,omitempty"`
	DepositAmount  string        `json:"depositAmount"`
	EgressAmount   string        `json:"egressAmount"`
	IncludedFees   []IncludedFee `json:"includedFees"`
	// seconds until the swap settles
	EstimatedDuration float64 `json:"estimatedDurationSeconds"`
}

type ChannelRequest struct {
	SourceChain      string `json:"srcChain"`
	SourceAsset      string `json:"srcAsset"`
	DestinationChain string `json:"destChain"`
	DestinationAsset string `json:"destAsset"`
	Amount           string `json:"amount"`
	Sender           string `json:"refundAddress"`
	Recipient        string `json:"destAddress"`
}

// DepositChannel carries the unsigned deposit transaction the sender has
// to sign and submit
type DepositChannel struct {
	ID             string `json:"id"`
	DepositAddress string `json:"depositAddress"`
	Payload        []byte `json:"unsignedTx"`
}

type SwapStatus struct {
	State         string `json:"state"`
	DepositTxHash string `json:"depositTransactionHash"`
	EgressTxHash  string `json:"egressTransactionHash"`
	Error         string `json:"error"`
}

// HTTPClient talks to the settlement REST API
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) GetQuote(ctx context.Context, req QuoteRequest) (Quote, error) {
	q := url.Values{}
	q.Set("srcChain", req.SourceChain)
	q.Set("srcAsset", req.SourceAsset)
	q.Set("destChain", req.DestinationChain)
	q.Set("destAsset", req.DestinationAsset)
	q.Set("amount", req.Amount)

	var out Quote
	err := c.do(ctx, http.MethodGet, "/quote?"+q.Encode(), nil, &out)
	return out, err
}

func (c *HTTPClient) OpenDepositChannel(ctx context.Context, req ChannelRequest) (DepositChannel, error) {
	var out DepositChannel
	err := c.do(ctx, http.MethodPost, "/deposit-channels", req, &out)
	return out, err
}

func (c *HTTPClient) SubmitDeposit(ctx context.Context, channelID string, payload, signature []byte) (string, error) {
	var out struct {
		TxHash string `json:"txHash"`
	}
	err := c.do(ctx, http.MethodPost, "/deposit-channels/"+url.PathEscape(channelID)+"/deposit", map[string][]byte{
		"tx":        payload,
		"signature": signature,
	}, &out)
	return out.TxHash, err
}

func (c *HTTPClient) GetSwapStatus(ctx context.Context, channelID string) (SwapStatus, error) {
	var out SwapStatus
	err := c.do(ctx, http.MethodGet, "/swaps/"+url.PathEscape(channelID), nil, &out)
	return out, err
}
