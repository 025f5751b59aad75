package lifecycle

import (
	"context"
	"time"

	"github.com/oversight-labs/opsgate/pkg/contracts"
)

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	AgentID   string
	SessionID string
	Status    contracts.Status
	Since     time.Time
	Until     time.Time
	Limit     int
}

// Store persists queue entries. Implementations must make Update
// conditional on the caller's expected status so that racing writers
// cannot both win; the loser sees ErrConflict.
type Store interface {
	// Put inserts a new entry. The command id must be unused.
	Put(ctx context.Context, entry contracts.QueueEntry) error
	// Get returns the entry or ErrNotFound.
	Get(ctx context.Context, commandID string) (contracts.QueueEntry, error)
	// Update replaces the entry iff its stored status equals expect.
	// A status mismatch or missing row returns ErrConflict.
	Update(ctx context.Context, entry contracts.QueueEntry, expect contracts.Status) error
	// List returns entries matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]contracts.QueueEntry, error)
}
