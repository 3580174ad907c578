package diagnostics

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"gomultibridge/types"

	"github.com/stretchr/testify/require"
)

type captureLogger struct {
	msgs   []string
	fields []map[string]any
}

func (c *captureLogger) Debug(string, map[string]any) {}
func (c *captureLogger) Info(string, map[string]any)  {}
func (c *captureLogger) Warn(string, map[string]any)  {}
func (c *captureLogger) Error(msg string, fields map[string]any) {
	c.msgs = append(c.msgs, msg)
	c.fields = append(c.fields, fields)
}

type captureRecorder struct {
	counters []string
}

func (c *captureRecorder) IncCounter(name string, _ map[string]string) {
	c.counters = append(c.counters, name)
}

func (c *captureRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

func TestReportOmitsAddresses(t *testing.T) {
	log := &captureLogger{}
	rec := &captureRecorder{}
	r := NewLogReporter(log, rec)

	params := types.TransferParams{
		SourceChain: "hub-a", DestinationChain: "hub-b",
		SourceToken: "dot", DestinationToken: "dot",
		Amount: big.NewInt(1000), Sender: "alice-secret-address", Recipient: "bob",
	}
	err := types.NewError(types.ErrCodeSubmission, "broadcast failed", errors.New("rpc down"))
	r.Report(NewEvent("sending", "relay-bridge", params, err))

	require.Len(t, log.fields, 1)
	fields := log.fields[0]
	require.Equal(t, types.ErrCodeSubmission, fields["code"])
	require.Equal(t, "1000", fields["amount"])
	for _, v := range fields {
		require.NotEqual(t, "alice-secret-address", v)
	}
	require.Equal(t, []string{"diagnostic_reported"}, rec.counters)
}
