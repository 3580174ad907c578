// Package storage persists ongoing and completed transfers.
//
// A transfer id lives in exactly one of the two collections. Complete moves
// a transfer atomically and is a no-op for ids that are not ongoing, so it
// can be retried safely.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"gomultibridge/types"
)

var (
	ErrDuplicate = errors.New("transfer id already stored")
	ErrConflict  = errors.New("transfer kept changing, update not applied")
)

// Change edits a stored transfer in place and reports whether it modified it.
// It may be called more than once for one update and must only depend on
// its argument.
type Change func(t *types.OngoingTransfer) bool

type TransferStore interface {
	AddOngoing(ctx context.Context, t *types.OngoingTransfer) error
	// UpdateOngoing applies change to the current stored record atomically
	// and returns the record as stored. Nothing is written when change
	// reports no modification. It returns nil when id is no longer ongoing
	// and never re-creates it.
	UpdateOngoing(ctx context.Context, id string, change Change) (*types.OngoingTransfer, error)
	RemoveOngoing(ctx context.Context, id string) error
	ListOngoing(ctx context.Context) ([]*types.OngoingTransfer, error)
	// Complete moves id to the completed list, it reports whether it moved
	Complete(ctx context.Context, id string, result types.Result, explorerLink string, at time.Time) (bool, error)
	ListCompleted(ctx context.Context) ([]*types.CompletedTransfer, error)
	OnChange(fn func())
}

// Listeners fans store change notifications out to subscribers
type Listeners struct {
	mu  sync.RWMutex
	fns []func()
}

func (l *Listeners) OnChange(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = append(l.fns, fn)
}

// Notify calls every subscriber, subscribers must not block
func (l *Listeners) Notify() {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, fn := range l.fns {
		fn()
	}
}
