package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oversight-labs/opsgate/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable Store. The conditional UPDATE carries the
// expected status in its WHERE clause, so a lost race shows up as zero
// affected rows rather than a silent overwrite.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS queue_entries (
		command_id TEXT PRIMARY KEY,
		decision_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		command TEXT NOT NULL,
		context_note TEXT,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		stdout TEXT,
		stderr TEXT,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		timeout_seconds INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 0,
		initiator_id TEXT,
		session_id TEXT,
		approval JSON
	);
	CREATE INDEX IF NOT EXISTS idx_queue_agent ON queue_entries(agent_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_queue_status ON queue_entries(status);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

const queueColumns = `command_id, decision_id, agent_id, command, context_note, status,
	created_at, started_at, completed_at, stdout, stderr, elapsed_ms,
	timeout_seconds, success, initiator_id, session_id, approval`

func (s *SQLiteStore) Put(ctx context.Context, e contracts.QueueEntry) error {
	query := `INSERT INTO queue_entries (` + queueColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	approvalJSON, _ := json.Marshal(e.Approval)
	_, err := s.db.ExecContext(ctx, query,
		e.CommandID, e.DecisionID, e.AgentID, e.Command, e.ContextNote, string(e.Status),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(e.StartedAt), nullableTime(e.CompletedAt),
		e.Stdout, e.Stderr, e.ElapsedMs,
		e.TimeoutSeconds, boolToInt(e.Success), e.InitiatorID, e.SessionID, string(approvalJSON))
	if err != nil {
		return fmt.Errorf("lifecycle: insert %s: %w", e.CommandID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, commandID string) (contracts.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_entries WHERE command_id = ?`
	row := s.db.QueryRowContext(ctx, query, commandID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.QueueEntry{}, ErrNotFound
	}
	return e, err
}

func (s *SQLiteStore) Update(ctx context.Context, e contracts.QueueEntry, expect contracts.Status) error {
	query := `UPDATE queue_entries SET
		status = ?, started_at = ?, completed_at = ?, stdout = ?, stderr = ?,
		elapsed_ms = ?, success = ?, approval = ?
		WHERE command_id = ? AND status = ?`

	approvalJSON, _ := json.Marshal(e.Approval)
	res, err := s.db.ExecContext(ctx, query,
		string(e.Status), nullableTime(e.StartedAt), nullableTime(e.CompletedAt),
		e.Stdout, e.Stderr, e.ElapsedMs, boolToInt(e.Success), string(approvalJSON),
		e.CommandID, string(expect))
	if err != nil {
		return fmt.Errorf("lifecycle: update %s: %w", e.CommandID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("lifecycle: update %s: %w", e.CommandID, err)
	}
	if n == 0 {
		return &ConflictError{CommandID: e.CommandID, From: expect, To: e.Status, Actor: ActorSystem}
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]contracts.QueueEntry, error) {
	var conds []string
	var args []any
	if f.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.Until.UTC().Format(time.RFC3339Nano))
	}

	query := `SELECT ` + queueColumns + ` FROM queue_entries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (contracts.QueueEntry, error) {
	var e contracts.QueueEntry
	var status, createdAt, approvalJSON string
	var startedAt, completedAt sql.NullString
	var success int

	err := row.Scan(
		&e.CommandID, &e.DecisionID, &e.AgentID, &e.Command, &e.ContextNote, &status,
		&createdAt, &startedAt, &completedAt, &e.Stdout, &e.Stderr, &e.ElapsedMs,
		&e.TimeoutSeconds, &success, &e.InitiatorID, &e.SessionID, &approvalJSON)
	if err != nil {
		return contracts.QueueEntry{}, err
	}

	e.Status = contracts.Status(status)
	e.Success = success != 0
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return contracts.QueueEntry{}, fmt.Errorf("lifecycle: bad created_at on %s: %w", e.CommandID, err)
	}
	if e.StartedAt, err = parseNullableTime(startedAt); err != nil {
		return contracts.QueueEntry{}, fmt.Errorf("lifecycle: bad started_at on %s: %w", e.CommandID, err)
	}
	if e.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return contracts.QueueEntry{}, fmt.Errorf("lifecycle: bad completed_at on %s: %w", e.CommandID, err)
	}
	if approvalJSON != "" {
		if err := json.Unmarshal([]byte(approvalJSON), &e.Approval); err != nil {
			return contracts.QueueEntry{}, fmt.Errorf("lifecycle: bad approval on %s: %w", e.CommandID, err)
		}
	}
	return e, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
