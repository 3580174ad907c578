// Package submission drives one transfer through
// Loading, Validating, Signing and Sending back to Idle.
package submission

import (
	"context"
	"errors"
	"time"

	"gomultibridge/backend"
	"gomultibridge/diagnostics"
	"gomultibridge/logger"
	"gomultibridge/metrics"
	"gomultibridge/registry"
	"gomultibridge/signer"
	"gomultibridge/storage"
	"gomultibridge/types"

	"github.com/google/uuid"
)

type State string

const (
	StateIdle       State = "Idle"
	StateLoading    State = "Loading"
	StateValidating State = "Validating"
	StateSigning    State = "Signing"
	StateSending    State = "Sending"
)

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// Event is one step of a run. The last event of every run is Idle with an
// outcome.
type Event struct {
	State       State                `json:"state"`
	Outcome     Outcome              `json:"outcome,omitempty"`
	TransferID  string               `json:"transferId,omitempty"`
	Correlation *types.Correlation   `json:"correlation,omitempty"`
	Error       *types.TransferError `json:"error,omitempty"`
	At          time.Time            `json:"at"`
}

const DefaultAckTimeout = 5 * time.Minute

type Machine struct {
	registry   registry.Lookup
	backends   backend.Set
	store      storage.TransferStore
	signer     signer.Signer
	reporter   diagnostics.Reporter
	log        logger.Logger
	metrics    metrics.Recorder
	ackTimeout time.Duration
	now        func() time.Time
}

type Option func(*Machine)

func WithLogger(l logger.Logger) Option {
	return func(m *Machine) { m.log = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(m *Machine) { m.metrics = r }
}

func WithReporter(r diagnostics.Reporter) Option {
	return func(m *Machine) { m.reporter = r }
}

func WithAckTimeout(d time.Duration) Option {
	return func(m *Machine) { m.ackTimeout = d }
}

func New(reg registry.Lookup, backends backend.Set, store storage.TransferStore, sgn signer.Signer, opts ...Option) *Machine {
	m := &Machine{
		registry:   reg,
		backends:   backends,
		store:      store,
		signer:     sgn,
		log:        logger.NoopLogger{},
		metrics:    metrics.NoopRecorder{},
		ackTimeout: DefaultAckTimeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(m)
	}
	if m.reporter == nil {
		m.reporter = diagnostics.NewLogReporter(m.log, m.metrics)
	}
	return m
}

// Submit starts a run and returns its event stream. The channel is
// buffered for a whole run and closed after the final Idle event.
func (m *Machine) Submit(ctx context.Context, params types.TransferParams) <-chan Event {
	events := make(chan Event, 8)
	go func() {
		defer close(events)
		r := &run{m: m, params: params, events: events}
		r.execute(ctx)
	}()
	return events
}

type run struct {
	m       *Machine
	params  types.TransferParams
	events  chan<- Event
	backend string
}

func (r *run) emit(e Event) {
	e.At = r.m.now()
	r.events <- e
}

func (r *run) finish(outcome Outcome, transferID string, err *types.TransferError) {
	r.emit(Event{State: StateIdle, Outcome: outcome, TransferID: transferID, Error: err})
	r.m.metrics.IncCounter(metrics.SubmissionOutcome, map[string]string{
		"backend": r.backend,
		"outcome": string(outcome),
	})
}

func (r *run) fail(stage State, transferID string, err error) {
	te := asTransferError(err, types.ErrCodeSubmission)
	ev := diagnostics.NewEvent(string(stage), r.backend, r.params, te)
	ev.TransferID = transferID
	r.m.reporter.Report(ev)
	r.finish(OutcomeError, transferID, te)
}

func (r *run) cancel() {
	r.finish(OutcomeCancelled, "", types.NewError(types.ErrCodeUserCancelled, "cancelled by user", nil))
}

func asTransferError(err error, code string) *types.TransferError {
	var te *types.TransferError
	if errors.As(err, &te) {
		return te
	}
	return types.NewError(code, err.Error(), err)
}

func cancelled(ctx context.Context, err error) bool {
	return errors.Is(err, signer.ErrUserRejected) || errors.Is(err, context.Canceled) || ctx.Err() != nil
}

func (r *run) execute(ctx context.Context) {
	m := r.m

	// Loading
	r.emit(Event{State: StateLoading})
	if err := ValidateParams(m.registry, r.params); err != nil {
		r.fail(StateLoading, "", err)
		return
	}
	route, err := m.registry.Resolve(r.params.SourceChain, r.params.DestinationChain, r.params.SourceToken)
	if err != nil {
		r.fail(StateLoading, "", err)
		return
	}
	r.backend = route.Backend
	b, err := m.backends.Get(route.Backend)
	if err != nil {
		r.fail(StateLoading, "", err)
		return
	}
	if err := b.Prepare(ctx, r.params); err != nil {
		if ctx.Err() != nil {
			r.cancel()
			return
		}
		r.fail(StateLoading, "", err)
		return
	}

	// Validating
	r.emit(Event{State: StateValidating})
	res, err := b.DryRun(ctx, r.params)
	switch {
	case errors.Is(err, backend.ErrDryRunUnsupported):
		m.log.Debug("dry-run unsupported, proceeding", map[string]any{"backend": route.Backend})
	case err != nil && ctx.Err() != nil:
		r.cancel()
		return
	case err != nil:
		r.fail(StateValidating, "", asTransferError(err, types.ErrCodeValidation))
		return
	case !res.Success:
		r.fail(StateValidating, "", types.NewError(types.ErrCodeValidation, res.FailureReason, nil))
		return
	}

	// Signing
	r.emit(Event{State: StateSigning})
	unsigned, err := b.BuildTx(ctx, r.params)
	if err != nil {
		if ctx.Err() != nil {
			r.cancel()
			return
		}
		r.fail(StateSigning, "", err)
		return
	}
	signed, err := m.signer.Sign(ctx, unsigned)
	if err != nil {
		if cancelled(ctx, err) {
			r.cancel()
			return
		}
		r.fail(StateSigning, "", err)
		return
	}

	// Sending: the caller can no longer abort, the transaction may be on chain
	r.emit(Event{State: StateSending})
	sendCtx, cancelSend := context.WithTimeout(context.WithoutCancel(ctx), m.ackTimeout)
	defer cancelSend()
	r.send(sendCtx, b, signed)
}

func (r *run) send(ctx context.Context, b backend.Backend, signed backend.SignedTx) {
	m := r.m

	sub, err := b.Broadcast(ctx, signed)
	if err != nil {
		r.fail(StateSending, "", err)
		return
	}

	corr := sub.Correlation()
	t := &types.OngoingTransfer{
		SchemaVersion: types.SchemaVersion,
		ID:            uuid.New().String(),
		Backend:       r.backend,
		Params:        r.params,
		Correlation:   corr,
		Status:        "submitted",
		Tracking:      types.StatusPending,
		CreatedAt:     m.now(),
	}
	if err := m.store.AddOngoing(ctx, t); err != nil {
		m.log.Error("broadcast transfer could not be stored", map[string]any{
			"transferId": t.ID, "backend": r.backend, "error": err,
		})
		r.fail(StateSending, t.ID, err)
		return
	}
	r.emit(Event{State: StateSending, TransferID: t.ID, Correlation: &corr})

	ack, err := sub.Wait(ctx)
	if err != nil {
		if rmErr := m.store.RemoveOngoing(ctx, t.ID); rmErr != nil {
			m.log.Error("cannot remove unacknowledged transfer", map[string]any{"transferId": t.ID, "error": rmErr})
		}
		code := types.ErrCodeSubmission
		if errors.Is(err, context.DeadlineExceeded) {
			code = types.ErrCodeTrackingTimeout
		}
		r.fail(StateSending, t.ID, types.NewError(code, "transfer was not acknowledged", err))
		return
	}

	at := ack.At
	if at.IsZero() {
		at = m.now()
	}
	// the reconciler may already have moved the record on; only add to it
	stored, err := m.store.UpdateOngoing(ctx, t.ID, func(cur *types.OngoingTransfer) bool {
		cur.Correlation = ack.Correlation.Merge(cur.Correlation)
		if ack.Status != "" && cur.Tracking == types.StatusPending {
			cur.Status = ack.Status
		}
		cur.FinalizedAt = &at
		return true
	})
	if err != nil {
		if corr.Empty() {
			// nothing the reconciler could match the stored record by
			if rmErr := m.store.RemoveOngoing(ctx, t.ID); rmErr != nil {
				m.log.Error("cannot remove untrackable transfer", map[string]any{"transferId": t.ID, "error": rmErr})
			}
			r.fail(StateSending, t.ID, types.NewError(types.ErrCodeSubmission, "acknowledgement could not be stored", err))
			return
		}
		m.log.Warn("cannot store acknowledgement", map[string]any{"transferId": t.ID, "error": err})
	}

	final := ack.Correlation.Merge(corr)
	if stored != nil {
		final = stored.Correlation
	}
	r.emit(Event{State: StateIdle, Outcome: OutcomeSuccess, TransferID: t.ID, Correlation: &final})
	m.metrics.IncCounter(metrics.SubmissionOutcome, map[string]string{
		"backend": r.backend,
		"outcome": string(OutcomeSuccess),
	})
}
