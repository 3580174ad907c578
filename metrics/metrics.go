package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// counter names
const (
	QuoteRequested     = "quote_requested"
	QuoteFailed        = "quote_failed"
	SubmissionOutcome  = "submission_outcome"
	ReconcilerMatch    = "reconciler_match"
	TransferCompleted  = "transfer_completed"
	TransferAgedOut    = "transfer_aged_out"
	DiagnosticReported = "diagnostic_reported"
	BackendPoll        = "backend_poll"
)
