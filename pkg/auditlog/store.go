package auditlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oversight-labs/opsgate/pkg/contracts"
)

// Filter narrows Query results. Zero values mean "any".
type Filter struct {
	Partition     string
	ActorID       string
	CorrelationID string
	EventType     contracts.AuditEventType
	Since         time.Time
	Until         time.Time
	Limit         int
}

// Store persists audit events. Events are append-only; no
// implementation exposes mutation or deletion.
type Store interface {
	Append(ctx context.Context, e contracts.AuditEvent) error
	// Query returns matching events ordered by partition then sequence.
	Query(ctx context.Context, f Filter) ([]contracts.AuditEvent, error)
	// LastInPartition returns the highest-sequence event of a
	// partition, or ok=false for an empty partition.
	LastInPartition(ctx context.Context, partition string) (contracts.AuditEvent, bool, error)
}

// MemoryStore is the slice-backed Store used by tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events []contracts.AuditEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, e contracts.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, f Filter) ([]contracts.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.AuditEvent
	for _, e := range s.events {
		if !matches(e, f) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Partition != out[j].Partition {
			return out[i].Partition < out[j].Partition
		}
		return out[i].Sequence < out[j].Sequence
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) LastInPartition(_ context.Context, partition string) (contracts.AuditEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last contracts.AuditEvent
	found := false
	for _, e := range s.events {
		if e.Partition != partition {
			continue
		}
		if !found || e.Sequence > last.Sequence {
			last = e
			found = true
		}
	}
	return last, found, nil
}

func matches(e contracts.AuditEvent, f Filter) bool {
	if f.Partition != "" && e.Partition != f.Partition {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}
