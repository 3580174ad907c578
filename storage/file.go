package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gomultibridge/logger"
	"gomultibridge/types"
)

// snapshot is the on-disk layout of a FileStore
type snapshot struct {
	SchemaVersion int               `json:"schemaVersion"`
	Ongoing       []json.RawMessage `json:"ongoing"`
	Completed     []json.RawMessage `json:"completed"`
}

// FileStore keeps transfers in memory and rewrites a JSON snapshot after
// every mutation. With an empty path nothing is written.
type FileStore struct {
	Listeners

	mu        sync.Mutex
	path      string
	log       logger.Logger
	ongoing   map[string]*types.OngoingTransfer
	completed []*types.CompletedTransfer
	done      map[string]bool
}

func NewMemoryStore() *FileStore {
	s, _ := NewFileStore("", nil)
	return s
}

func NewFileStore(path string, log logger.Logger) (*FileStore, error) {
	if log == nil {
		log = logger.NoopLogger{}
	}
	s := &FileStore{
		path:    path,
		log:     log,
		ongoing: map[string]*types.OngoingTransfer{},
		done:    map[string]bool{},
	}
	if path == "" {
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read transfers file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("unmarshal transfers file: %w", err)
	}
	if snap.SchemaVersion == 0 {
		snap.SchemaVersion = 1
	}
	if snap.SchemaVersion > types.SchemaVersion {
		s.log.Warn("transfers file written by a newer version, starting empty", map[string]any{
			"path": s.path, "schemaVersion": snap.SchemaVersion,
		})
		return s.save()
	}

	for _, raw := range snap.Ongoing {
		t, err := MigrateOngoing(raw, snap.SchemaVersion)
		if err != nil {
			return fmt.Errorf("ongoing record: %w", err)
		}
		s.ongoing[t.ID] = t
	}
	for _, raw := range snap.Completed {
		c, err := MigrateCompleted(raw, snap.SchemaVersion)
		if err != nil {
			return fmt.Errorf("completed record: %w", err)
		}
		s.completed = append(s.completed, c)
		s.done[c.Transfer.ID] = true
	}
	if snap.SchemaVersion < types.SchemaVersion {
		s.log.Info("migrated transfers file", map[string]any{
			"path": s.path, "from": snap.SchemaVersion, "to": types.SchemaVersion,
		})
		return s.save()
	}
	return nil
}

// save writes the snapshot through a temporary file, callers hold mu
func (s *FileStore) save() error {
	if s.path == "" {
		return nil
	}
	snap := snapshot{
		SchemaVersion: types.SchemaVersion,
		Ongoing:       make([]json.RawMessage, 0, len(s.ongoing)),
		Completed:     make([]json.RawMessage, 0, len(s.completed)),
	}
	for _, t := range sortedOngoing(s.ongoing) {
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		snap.Ongoing = append(snap.Ongoing, b)
	}
	for _, c := range s.completed {
		b, err := json.Marshal(c)
		if err != nil {
			return err
		}
		snap.Completed = append(snap.Completed, b)
	}

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func sortedOngoing(m map[string]*types.OngoingTransfer) []*types.OngoingTransfer {
	out := make([]*types.OngoingTransfer, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *FileStore) AddOngoing(ctx context.Context, t *types.OngoingTransfer) error {
	if t == nil || t.ID == "" {
		return errors.New("transfer without id")
	}
	s.mu.Lock()
	if _, ok := s.ongoing[t.ID]; ok || s.done[t.ID] {
		s.mu.Unlock()
		return ErrDuplicate
	}
	c := t.Clone()
	c.SchemaVersion = types.SchemaVersion
	s.ongoing[t.ID] = c
	err := s.save()
	if err != nil {
		delete(s.ongoing, t.ID)
	}
	s.mu.Unlock()

	if err == nil {
		s.Notify()
	}
	return err
}

func (s *FileStore) UpdateOngoing(ctx context.Context, id string, change Change) (*types.OngoingTransfer, error) {
	s.mu.Lock()
	prev, ok := s.ongoing[id]
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	c := prev.Clone()
	if !change(c) {
		s.mu.Unlock()
		return c, nil
	}
	c.ID = id
	c.SchemaVersion = types.SchemaVersion
	s.ongoing[id] = c
	err := s.save()
	if err != nil {
		s.ongoing[id] = prev
	}
	out := c.Clone()
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	s.Notify()
	return out, nil
}

func (s *FileStore) RemoveOngoing(ctx context.Context, id string) error {
	s.mu.Lock()
	prev, ok := s.ongoing[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.ongoing, id)
	err := s.save()
	if err != nil {
		s.ongoing[id] = prev
	}
	s.mu.Unlock()

	if err == nil {
		s.Notify()
	}
	return err
}

func (s *FileStore) ListOngoing(ctx context.Context) ([]*types.OngoingTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := sortedOngoing(s.ongoing)
	for i, t := range sorted {
		sorted[i] = t.Clone()
	}
	return sorted, nil
}

func (s *FileStore) Complete(ctx context.Context, id string, result types.Result, explorerLink string, at time.Time) (bool, error) {
	s.mu.Lock()
	t, ok := s.ongoing[id]
	if !ok || s.done[id] {
		s.mu.Unlock()
		return false, nil
	}
	c := &types.CompletedTransfer{
		SchemaVersion: types.SchemaVersion,
		Transfer:      *t.Clone(),
		Result:        result,
		ExplorerLink:  explorerLink,
		CompletedAt:   at.UTC(),
	}
	delete(s.ongoing, id)
	s.completed = append(s.completed, c)
	s.done[id] = true
	err := s.save()
	if err != nil {
		s.ongoing[id] = t
		s.completed = s.completed[:len(s.completed)-1]
		delete(s.done, id)
	}
	s.mu.Unlock()

	if err != nil {
		return false, err
	}
	s.Notify()
	return true, nil
}

func (s *FileStore) ListCompleted(ctx context.Context) ([]*types.CompletedTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.CompletedTransfer, len(s.completed))
	for i, c := range s.completed {
		cp := *c
		cp.Transfer = *c.Transfer.Clone()
		out[i] = &cp
	}
	return out, nil
}
