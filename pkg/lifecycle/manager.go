package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oversight-labs/opsgate/pkg/contracts"
)

// Manager advances queue entries through the state machine. All writes
// are read-modify-write under the manager lock, with the store's
// conditional update as the second line of defense against racing
// processes sharing one database.
type Manager struct {
	mu    sync.Mutex
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		log:   slog.Default().With("component", "lifecycle"),
		now:   time.Now,
	}
}

// WithClock overrides the manager's time source. Test hook.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Submit enqueues a command that passed policy. Denied verdicts are a
// caller bug and are rejected. Entries that need no approval enter the
// queue already approved, with no approver identity recorded.
func (m *Manager) Submit(ctx context.Context, d contracts.PolicyVerdict, cl contracts.CommandClassification, contextNote string) (contracts.QueueEntry, error) {
	if !d.Allowed {
		return contracts.QueueEntry{}, fmt.Errorf("lifecycle: cannot enqueue denied decision %s", d.DecisionID)
	}

	status := contracts.StatusApproved
	approval := contracts.Approval{Required: d.RequiresApproval}
	if d.RequiresApproval {
		status = contracts.StatusPending
	} else {
		t := true
		approval.Approved = &t
	}

	initiator := d.Context.UserID
	if initiator == "" {
		initiator = d.Context.AgentID
	}

	e := contracts.QueueEntry{
		CommandID:      uuid.NewString(),
		DecisionID:     d.DecisionID,
		AgentID:        d.Context.AgentID,
		Command:        d.Command,
		ContextNote:    contextNote,
		Status:         status,
		CreatedAt:      m.now().UTC(),
		TimeoutSeconds: cl.TimeoutSeconds,
		InitiatorID:    initiator,
		SessionID:      d.Context.SessionID,
		Approval:       approval,
	}
	if err := m.store.Put(ctx, e); err != nil {
		return contracts.QueueEntry{}, err
	}
	m.log.Info("enqueued",
		"command_id", e.CommandID,
		"decision_id", e.DecisionID,
		"status", string(e.Status))
	return e, nil
}

// Get returns the entry or ErrNotFound.
func (m *Manager) Get(ctx context.Context, commandID string) (contracts.QueueEntry, error) {
	return m.store.Get(ctx, commandID)
}

// List returns entries matching the filter, newest first.
func (m *Manager) List(ctx context.Context, f Filter) ([]contracts.QueueEntry, error) {
	return m.store.List(ctx, f)
}

// Approve records a human decision on a pending entry. A rejection
// moves the entry to cancelled with the refusal preserved. The approver
// identity is mandatory so a human decision is never mistakable for an
// auto-approval, which records no approver.
func (m *Manager) Approve(ctx context.Context, commandID, approverID string, approved bool) (contracts.QueueEntry, error) {
	if approverID == "" {
		return contracts.QueueEntry{}, ErrMissingApprover
	}
	target := contracts.StatusApproved
	if !approved {
		target = contracts.StatusCancelled
	}
	return m.advance(ctx, commandID, target, ActorHuman, func(e *contracts.QueueEntry) {
		at := m.now().UTC()
		e.Approval.Approved = &approved
		e.Approval.ApproverID = approverID
		e.Approval.ApprovedAt = &at
		if !approved {
			e.CompletedAt = &at
		}
	})
}

// Cancel withdraws a pending or approved entry before execution starts.
func (m *Manager) Cancel(ctx context.Context, commandID string, actor ActorKind) (contracts.QueueEntry, error) {
	return m.advance(ctx, commandID, contracts.StatusCancelled, actor, func(e *contracts.QueueEntry) {
		at := m.now().UTC()
		e.CompletedAt = &at
	})
}

// ReportStart marks an approved entry as executing.
func (m *Manager) ReportStart(ctx context.Context, commandID string) (contracts.QueueEntry, error) {
	return m.advance(ctx, commandID, contracts.StatusExecuting, ActorAgent, func(e *contracts.QueueEntry) {
		at := m.now().UTC()
		e.StartedAt = &at
	})
}

// ReportCompletion records a successful execution result.
func (m *Manager) ReportCompletion(ctx context.Context, commandID, stdout, stderr string, elapsedMs int64) (contracts.QueueEntry, error) {
	return m.advance(ctx, commandID, contracts.StatusCompleted, ActorAgent, func(e *contracts.QueueEntry) {
		at := m.now().UTC()
		e.CompletedAt = &at
		e.Stdout = stdout
		e.Stderr = stderr
		e.ElapsedMs = elapsedMs
		e.Success = true
	})
}

// ReportFailure records a failed execution result.
func (m *Manager) ReportFailure(ctx context.Context, commandID, stdout, stderr string, elapsedMs int64) (contracts.QueueEntry, error) {
	return m.advance(ctx, commandID, contracts.StatusFailed, ActorAgent, func(e *contracts.QueueEntry) {
		at := m.now().UTC()
		e.CompletedAt = &at
		e.Stdout = stdout
		e.Stderr = stderr
		e.ElapsedMs = elapsedMs
	})
}

// ReportTimeout marks an executing entry as timed out. Only the system
// sweeper may do this.
func (m *Manager) ReportTimeout(ctx context.Context, commandID string) (contracts.QueueEntry, error) {
	return m.advance(ctx, commandID, contracts.StatusTimedOut, ActorSystem, func(e *contracts.QueueEntry) {
		at := m.now().UTC()
		e.CompletedAt = &at
		if e.StartedAt != nil {
			e.ElapsedMs = at.Sub(*e.StartedAt).Milliseconds()
		}
	})
}

// CheckTimeouts sweeps executing entries whose deadline has passed and
// times each one out. It returns the entries it expired. Entries that
// lose a race with a concurrent completion are skipped.
func (m *Manager) CheckTimeouts(ctx context.Context) ([]contracts.QueueEntry, error) {
	executing, err := m.store.List(ctx, Filter{Status: contracts.StatusExecuting})
	if err != nil {
		return nil, err
	}

	var expired []contracts.QueueEntry
	now := m.now().UTC()
	for _, e := range executing {
		if e.StartedAt == nil || e.TimeoutSeconds <= 0 {
			continue
		}
		deadline := e.StartedAt.Add(time.Duration(e.TimeoutSeconds) * time.Second)
		if now.Before(deadline) {
			continue
		}
		out, err := m.ReportTimeout(ctx, e.CommandID)
		if err != nil {
			m.log.Warn("timeout sweep lost race", "command_id", e.CommandID, "err", err)
			continue
		}
		expired = append(expired, out)
	}
	return expired, nil
}

func (m *Manager) advance(ctx context.Context, commandID string, target contracts.Status, actor ActorKind, apply func(*contracts.QueueEntry)) (contracts.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.store.Get(ctx, commandID)
	if err != nil {
		return contracts.QueueEntry{}, err
	}
	if err := Transition(commandID, e.Status, target, actor); err != nil {
		return contracts.QueueEntry{}, err
	}

	prev := e.Status
	e.Status = target
	apply(&e)

	if err := m.store.Update(ctx, e, prev); err != nil {
		return contracts.QueueEntry{}, err
	}
	m.log.Info("transition",
		"command_id", commandID,
		"from", string(prev),
		"to", string(target),
		"actor", string(actor))
	return e, nil
}
