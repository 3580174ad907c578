package backend

import (
	"context"
	"net/http"
	"time"

	"github.com/ybbus/jsonrpc"
)

// RPC wraps a JSON-RPC endpoint of a backend service. The underlying
// client has no context support, calls are abandoned when ctx ends.
type RPC struct {
	client jsonrpc.RPCClient
}

func NewRPC(endpoint string, timeout time.Duration) *RPC {
	return &RPC{
		client: jsonrpc.NewClientWithOpts(endpoint, &jsonrpc.RPCClientOpts{
			HTTPClient: &http.Client{Timeout: timeout},
		}),
	}
}

// Call invokes method with a single params object and decodes the result into out
func (r *RPC) Call(ctx context.Context, out interface{}, method string, params interface{}) error {
	done := make(chan error, 1)
	go func() {
		if params == nil {
			done <- r.client.CallFor(out, method)
			return
		}
		done <- r.client.CallFor(out, method, params)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
