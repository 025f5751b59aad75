package lifecycle

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversight-labs/opsgate/pkg/contracts"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return s
}

func sqliteEntry(id string, status contracts.Status) contracts.QueueEntry {
	return contracts.QueueEntry{
		CommandID:      id,
		DecisionID:     "dec-" + id,
		AgentID:        "agent-1",
		Command:        "Restart-Service -Name W3SVC",
		ContextNote:    "web tier restart",
		Status:         status,
		CreatedAt:      time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		TimeoutSeconds: 120,
		InitiatorID:    "user-1",
		SessionID:      "sess-1",
		Approval:       contracts.Approval{Required: true},
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	in := sqliteEntry("cmd-1", contracts.StatusPending)
	require.NoError(t, s.Put(ctx, in))

	out, err := s.Get(ctx, "cmd-1")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreDuplicateInsert(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, sqliteEntry("cmd-1", contracts.StatusPending)))
	assert.Error(t, s.Put(ctx, sqliteEntry("cmd-1", contracts.StatusPending)))
}

func TestSQLiteStoreConditionalUpdate(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	e := sqliteEntry("cmd-1", contracts.StatusPending)
	require.NoError(t, s.Put(ctx, e))

	approved := true
	at := time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC)
	e.Status = contracts.StatusApproved
	e.Approval.Approved = &approved
	e.Approval.ApproverID = "operator-7"
	e.Approval.ApprovedAt = &at
	require.NoError(t, s.Update(ctx, e, contracts.StatusPending))

	got, err := s.Get(ctx, "cmd-1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusApproved, got.Status)
	require.NotNil(t, got.Approval.ApprovedAt)
	assert.True(t, got.Approval.ApprovedAt.Equal(at))

	// A stale expectation loses instead of overwriting.
	e.Status = contracts.StatusCancelled
	err = s.Update(ctx, e, contracts.StatusPending)
	assert.ErrorIs(t, err, ErrConflict)

	got, err = s.Get(ctx, "cmd-1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusApproved, got.Status)
}

func TestSQLiteStoreNullableTimes(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	e := sqliteEntry("cmd-1", contracts.StatusExecuting)
	started := time.Date(2025, 6, 1, 10, 1, 0, 0, time.UTC)
	e.StartedAt = &started
	require.NoError(t, s.Put(ctx, e))

	got, err := s.Get(ctx, "cmd-1")
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.CompletedAt)
}

func TestSQLiteStoreList(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a := sqliteEntry("cmd-a", contracts.StatusPending)
	b := sqliteEntry("cmd-b", contracts.StatusExecuting)
	b.CreatedAt = a.CreatedAt.Add(time.Minute)
	c := sqliteEntry("cmd-c", contracts.StatusPending)
	c.AgentID = "agent-2"
	c.SessionID = "sess-2"
	c.CreatedAt = a.CreatedAt.Add(2 * time.Minute)

	for _, e := range []contracts.QueueEntry{a, b, c} {
		require.NoError(t, s.Put(ctx, e))
	}

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "cmd-c", all[0].CommandID, "newest first")

	byAgent, err := s.List(ctx, Filter{AgentID: "agent-1"})
	require.NoError(t, err)
	assert.Len(t, byAgent, 2)

	byStatus, err := s.List(ctx, Filter{Status: contracts.StatusExecuting})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "cmd-b", byStatus[0].CommandID)

	since, err := s.List(ctx, Filter{Since: a.CreatedAt.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	limited, err := s.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "cmd-c", limited[0].CommandID)
}

func TestManagerOnSQLiteStore(t *testing.T) {
	s := newTestSQLiteStore(t)
	m := NewManager(s)
	ctx := context.Background()

	e, err := m.Submit(ctx, testVerdict(true), testClassification(), "durable path")
	require.NoError(t, err)

	e, err = m.Approve(ctx, e.CommandID, "operator-7", true)
	require.NoError(t, err)
	e, err = m.ReportStart(ctx, e.CommandID)
	require.NoError(t, err)
	e, err = m.ReportCompletion(ctx, e.CommandID, "done", "", 55)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCompleted, e.Status)

	_, err = m.ReportStart(ctx, e.CommandID)
	assert.ErrorIs(t, err, ErrConflict)
}
