package auditlog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversight-labs/opsgate/pkg/contracts"
)

func testEvent(actor string) contracts.AuditEvent {
	return contracts.AuditEvent{
		CorrelationID: "dec-1",
		ActorID:       actor,
		EventType:     contracts.AuditPolicyDecision,
		Severity:      contracts.AuditInfo,
		Command:       "Get-Service -Name W3SVC",
		Decision:      contracts.ReasonAllowed,
	}
}

func frozenClock() func() time.Time {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestRecordFillsChainFields(t *testing.T) {
	l := NewLedger(NewMemoryStore(), WithClock(frozenClock()))
	ctx := context.Background()

	first := l.Record(ctx, testEvent("agent-1"))
	assert.NotEmpty(t, first.EventID)
	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, "agent-1", first.Partition)
	assert.Equal(t, GenesisToken, first.PrevToken)
	assert.True(t, strings.HasPrefix(first.IntegrityToken, "sha256:"))
	assert.False(t, first.Timestamp.IsZero())

	second := l.Record(ctx, testEvent("agent-1"))
	assert.Equal(t, uint64(2), second.Sequence)
	assert.Equal(t, first.IntegrityToken, second.PrevToken)
	assert.NotEqual(t, first.EventID, second.EventID)
}

func TestPartitionsAreIndependentChains(t *testing.T) {
	l := NewLedger(NewMemoryStore(), WithClock(frozenClock()))
	ctx := context.Background()

	a := l.Record(ctx, testEvent("agent-a"))
	b := l.Record(ctx, testEvent("agent-b"))

	assert.Equal(t, uint64(1), a.Sequence)
	assert.Equal(t, uint64(1), b.Sequence)
	assert.Equal(t, GenesisToken, a.PrevToken)
	assert.Equal(t, GenesisToken, b.PrevToken)

	e := testEvent("agent-a")
	e.Partition = Partition("agent-a", "sess-1")
	scoped := l.Record(ctx, e)
	assert.Equal(t, "agent-a/sess-1", scoped.Partition)
	assert.Equal(t, uint64(1), scoped.Sequence, "session partition starts its own chain")
}

func TestChainSurvivesRestart(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := NewLedger(store, WithClock(frozenClock()))
	last := first.Record(ctx, testEvent("agent-1"))
	last = first.Record(ctx, testEvent("agent-1"))

	// A fresh ledger over the same store picks the chain up where the
	// previous process left it.
	reopened := NewLedger(store, WithClock(frozenClock()))
	next := reopened.Record(ctx, testEvent("agent-1"))
	assert.Equal(t, uint64(3), next.Sequence)
	assert.Equal(t, last.IntegrityToken, next.PrevToken)
}

func TestVerifyEvent(t *testing.T) {
	l := NewLedger(NewMemoryStore(), WithClock(frozenClock()))
	e := l.Record(context.Background(), testEvent("agent-1"))
	assert.True(t, VerifyEvent(e))

	tampered := e
	tampered.Command = "Remove-Item -Recurse C:\\"
	assert.False(t, VerifyEvent(tampered))
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	store := NewMemoryStore()
	l := NewLedger(store, WithClock(frozenClock()))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, l.Record(ctx, testEvent("agent-1")).EventID)
	}

	compromised, err := l.VerifyChain(ctx, "agent-1")
	require.NoError(t, err)
	assert.Empty(t, compromised)

	// Rewrite the second event in place. Its token no longer matches
	// and the third event's PrevToken no longer links.
	store.mu.Lock()
	store.events[1].Command = "something else"
	store.mu.Unlock()

	compromised, err = l.VerifyChain(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, compromised)

	// Re-tokenizing the forged event hides the content change but
	// breaks linkage on both sides.
	store.mu.Lock()
	token, err := IntegrityToken(store.events[1])
	require.NoError(t, err)
	store.events[1].IntegrityToken = token
	store.mu.Unlock()

	compromised, err = l.VerifyChain(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2]}, compromised)
}

type failingStore struct {
	*MemoryStore
	appendErr error
}

func (s *failingStore) Append(ctx context.Context, e contracts.AuditEvent) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.MemoryStore.Append(ctx, e)
}

func TestRecordSwallowsPersistenceErrors(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), appendErr: errors.New("disk full")}

	var handled []error
	l := NewLedger(store,
		WithClock(frozenClock()),
		WithFailureHandler(func(_ contracts.AuditEvent, err error) {
			handled = append(handled, err)
		}))
	ctx := context.Background()

	// The caller sees a tokenized event either way.
	e := l.Record(ctx, testEvent("agent-1"))
	assert.NotEmpty(t, e.IntegrityToken)
	assert.Equal(t, uint64(1), l.FailureCount())
	require.Len(t, handled, 1)
	assert.ErrorContains(t, handled[0], "disk full")

	// The in-memory chain head does not advance past a failed append,
	// so the next successful event reuses the sequence slot.
	store.appendErr = nil
	next := l.Record(ctx, testEvent("agent-1"))
	assert.Equal(t, uint64(1), next.Sequence)
	assert.Equal(t, GenesisToken, next.PrevToken)
}

func TestQueryFilters(t *testing.T) {
	l := NewLedger(NewMemoryStore(), WithClock(frozenClock()))
	ctx := context.Background()

	l.Record(ctx, testEvent("agent-1"))
	denied := testEvent("agent-1")
	denied.EventType = contracts.AuditSecurityEvent
	denied.Severity = contracts.AuditError
	denied.Decision = contracts.ReasonBlacklisted
	l.Record(ctx, denied)
	l.Record(ctx, testEvent("agent-2"))

	byActor, err := l.Query(ctx, Filter{ActorID: "agent-1"})
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	byType, err := l.Query(ctx, Filter{EventType: contracts.AuditSecurityEvent})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, contracts.ReasonBlacklisted, byType[0].Decision)
}
