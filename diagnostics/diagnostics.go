// Package diagnostics reports failed transfer operations. Events carry the
// route and amount only, never addresses or key material.
package diagnostics

import (
	"gomultibridge/logger"
	"gomultibridge/metrics"
	"gomultibridge/types"
)

type Event struct {
	Stage            string
	Code             string
	Backend          string
	TransferID       string
	SourceChain      string
	DestinationChain string
	SourceToken      string
	DestinationToken string
	Amount           string
	Err              error
}

// NewEvent fills the route fields from params
func NewEvent(stage, backend string, params types.TransferParams, err error) Event {
	e := Event{
		Stage:            stage,
		Code:             types.ErrorCode(err),
		Backend:          backend,
		SourceChain:      params.SourceChain,
		DestinationChain: params.DestinationChain,
		SourceToken:      params.SourceToken,
		DestinationToken: params.DestinationToken,
		Err:              err,
	}
	if params.Amount != nil {
		e.Amount = params.Amount.String()
	}
	return e
}

type Reporter interface {
	Report(e Event)
}

// LogReporter writes events to the structured log and counts them
type LogReporter struct {
	log     logger.Logger
	metrics metrics.Recorder
}

func NewLogReporter(log logger.Logger, rec metrics.Recorder) *LogReporter {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &LogReporter{log: log, metrics: rec}
}

func (r *LogReporter) Report(e Event) {
	fields := map[string]any{
		"stage":            e.Stage,
		"code":             e.Code,
		"backend":          e.Backend,
		"sourceChain":      e.SourceChain,
		"destinationChain": e.DestinationChain,
		"sourceToken":      e.SourceToken,
		"destinationToken": e.DestinationToken,
		"amount":           e.Amount,
	}
	if e.TransferID != "" {
		fields["transferId"] = e.TransferID
	}
	if e.Err != nil {
		fields["error"] = e.Err
	}
	r.log.Error("transfer diagnostic", fields)
	r.metrics.IncCounter(metrics.DiagnosticReported, map[string]string{
		"backend": e.Backend,
		"outcome": e.Stage,
	})
}
