// Package tracking polls backends for ongoing transfers, keeps their
// canonical status current and archives them once terminal.
package tracking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gomultibridge/backend"
	"gomultibridge/diagnostics"
	"gomultibridge/logger"
	"gomultibridge/metrics"
	"gomultibridge/storage"
	"gomultibridge/types"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultMaxAge   = 14 * 24 * time.Hour
)

// Stats describes the reconciler for the state endpoint
type Stats struct {
	Passes   int64     `json:"passes"`
	LastPass time.Time `json:"lastPass"`
	Skipped  int64     `json:"skipped"`
	Running  bool      `json:"running"`
}

type Reconciler struct {
	store    storage.TransferStore
	backends backend.Set
	reporter diagnostics.Reporter
	log      logger.Logger
	metrics  metrics.Recorder
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time

	running sync.Mutex
	passing atomic.Bool
	trigger chan struct{}

	statsMu sync.RWMutex
	stats   Stats
}

type Option func(*Reconciler)

func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithReporter(d diagnostics.Reporter) Option {
	return func(r *Reconciler) { r.reporter = d }
}

func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.interval = d }
}

func WithMaxAge(d time.Duration) Option {
	return func(r *Reconciler) { r.maxAge = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func New(store storage.TransferStore, backends backend.Set, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		backends: backends,
		log:      logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		interval: DefaultInterval,
		maxAge:   DefaultMaxAge,
		now:      func() time.Time { return time.Now().UTC() },
		trigger:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(r)
	}
	if r.reporter == nil {
		r.reporter = diagnostics.NewLogReporter(r.log, r.metrics)
	}
	return r
}

// Trigger requests a pass as soon as possible without blocking
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Reconciler) Stats() Stats {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()
	s := r.stats
	s.Running = r.passing.Load()
	return s
}

// Run passes once immediately, then on every tick and store change until
// ctx ends
func (r *Reconciler) Run(ctx context.Context) {
	// a change during a pass queues exactly one more pass; the pass's own
	// writes settle because unchanged records are not written again
	r.store.OnChange(r.Trigger)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Pass(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped", nil)
			return
		case <-ticker.C:
			r.Pass(ctx)
		case <-r.trigger:
			r.Pass(ctx)
		}
	}
}

type polled struct {
	backend   backend.Backend
	transfers []*types.OngoingTransfer
	records   []backend.StatusRecord
}

// Pass runs one reconciliation. It returns false without doing anything
// when another pass is in progress.
func (r *Reconciler) Pass(ctx context.Context) bool {
	if !r.running.TryLock() {
		r.statsMu.Lock()
		r.stats.Skipped++
		r.statsMu.Unlock()
		return false
	}
	defer r.running.Unlock()
	r.passing.Store(true)
	defer r.passing.Store(false)

	start := r.now()
	defer func() {
		r.statsMu.Lock()
		r.stats.Passes++
		r.stats.LastPass = start
		r.statsMu.Unlock()
	}()

	transfers, err := r.store.ListOngoing(ctx)
	if err != nil {
		r.log.Error("cannot list ongoing transfers", map[string]any{"error": err})
		return true
	}

	groups := map[string]*polled{}
	for _, t := range transfers {
		if r.ageOut(ctx, t) {
			continue
		}
		g, ok := groups[t.Backend]
		if !ok {
			b, err := r.backends.Get(t.Backend)
			if err != nil {
				r.log.Warn("transfer of unconfigured backend", map[string]any{"transferId": t.ID, "backend": t.Backend})
				continue
			}
			g = &polled{backend: b}
			groups[t.Backend] = g
		}
		g.transfers = append(g.transfers, t)
	}

	eg, egctx := errgroup.WithContext(ctx)
	for name, g := range groups {
		eg.Go(func() error {
			pollStart := time.Now()
			records, err := g.backend.Status(egctx, g.transfers)
			r.metrics.ObserveLatency("backend_status", time.Since(pollStart), map[string]string{"backend": name})
			outcome := "ok"
			if err != nil {
				outcome = "error"
				r.log.Warn("backend status query failed", map[string]any{
					"backend": name, "transfers": len(g.transfers), "records": len(records), "error": err,
				})
			}
			r.metrics.IncCounter(metrics.BackendPoll, map[string]string{"backend": name, "outcome": outcome})
			g.records = records
			return nil
		})
	}
	_ = eg.Wait()

	for name, g := range groups {
		for _, t := range g.transfers {
			rec, ok := backend.Match(t, g.records)
			if !ok {
				continue
			}
			r.metrics.IncCounter(metrics.ReconcilerMatch, map[string]string{"backend": name, "outcome": string(rec.Status)})
			if err := r.apply(ctx, g.backend, t, rec); err != nil {
				r.log.Error("cannot apply transfer status", map[string]any{"transferId": t.ID, "error": err})
			}
		}
	}
	return true
}

// ageOut finalizes a transfer that has been ongoing longer than maxAge
func (r *Reconciler) ageOut(ctx context.Context, t *types.OngoingTransfer) bool {
	if r.maxAge <= 0 || r.now().Sub(t.CreatedAt) <= r.maxAge {
		return false
	}
	link := ""
	if b, err := r.backends.Get(t.Backend); err == nil {
		link = b.ExplorerLink(t.Correlation)
	}
	moved, err := r.store.Complete(ctx, t.ID, types.ResultUndefined, link, r.now())
	if err != nil {
		r.log.Error("cannot finalize aged transfer", map[string]any{"transferId": t.ID, "error": err})
		return true
	}
	if moved {
		ev := diagnostics.NewEvent("tracking", t.Backend, t.Params,
			types.NewError(types.ErrCodeTrackingTimeout, "transfer aged out without a terminal status", nil))
		ev.TransferID = t.ID
		r.reporter.Report(ev)
		r.metrics.IncCounter(metrics.TransferAgedOut, map[string]string{"backend": t.Backend})
	}
	return true
}

func (r *Reconciler) apply(ctx context.Context, b backend.Backend, t *types.OngoingTransfer, rec backend.StatusRecord) error {
	if rec.Status == types.StatusUnknown {
		return nil
	}
	// applied to the stored record, not to t, which may be stale by now
	stored, err := r.store.UpdateOngoing(ctx, t.ID, func(cur *types.OngoingTransfer) bool {
		return advance(cur, rec)
	})
	if err != nil {
		return err
	}
	if stored == nil || !stored.Tracking.IsTerminal() {
		// completed or removed meanwhile, or still moving
		return nil
	}

	result := types.ResultSucceeded
	if stored.Tracking == types.StatusFailed {
		result = types.ResultFailed
	}
	link := rec.ExplorerLink
	if link == "" {
		link = b.ExplorerLink(stored.Correlation)
	}
	moved, err := r.store.Complete(ctx, t.ID, result, link, r.now())
	if err != nil {
		return err
	}
	if moved {
		r.log.Info("transfer completed", map[string]any{"transferId": t.ID, "backend": t.Backend, "result": result})
		r.metrics.IncCounter(metrics.TransferCompleted, map[string]string{"backend": t.Backend, "outcome": string(result)})
	}
	return nil
}

// advance moves cur forward to rec and reports whether anything changed.
// A status never moves backwards.
func advance(cur *types.OngoingTransfer, rec backend.StatusRecord) bool {
	if rec.Status.Rank() < cur.Tracking.Rank() {
		return false
	}
	prev := *cur
	cur.Tracking = rec.Status
	if rec.Detail != "" {
		cur.Status = rec.Detail
	}
	cur.Correlation = cur.Correlation.Merge(rec.Correlation)
	return cur.Tracking != prev.Tracking || cur.Status != prev.Status || cur.Correlation != prev.Correlation
}
