package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oversight-labs/opsgate/pkg/contracts"
)

// MemoryStore is the map-backed Store used by tests and ephemeral
// deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]contracts.QueueEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]contracts.QueueEntry)}
}

func (s *MemoryStore) Put(_ context.Context, entry contracts.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.CommandID]; ok {
		return fmt.Errorf("lifecycle: duplicate command id %s", entry.CommandID)
	}
	s.entries[entry.CommandID] = entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, commandID string) (contracts.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[commandID]
	if !ok {
		return contracts.QueueEntry{}, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) Update(_ context.Context, entry contracts.QueueEntry, expect contracts.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[entry.CommandID]
	if !ok || cur.Status != expect {
		return &ConflictError{CommandID: entry.CommandID, From: cur.Status, To: entry.Status, Actor: ActorSystem}
	}
	s.entries[entry.CommandID] = entry
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]contracts.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.QueueEntry
	for _, e := range s.entries {
		if f.AgentID != "" && e.AgentID != f.AgentID {
			continue
		}
		if f.SessionID != "" && e.SessionID != f.SessionID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.CreatedAt.After(f.Until) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
