package auditlog

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

// SQLiteStore is the durable audit Store. Rows are insert-only; the
// schema carries no UPDATE path at all.
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
	CREATE TABLE IF NOT EXISTS audit_events (
		event_id TEXT PRIMARY KEY,
		sequence INTEGER NOT NULL,
		correlation_id TEXT,
		partition_key TEXT NOT NULL,
		actor_id TEXT,
		event_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		command TEXT,
		parameters JSON,
		result TEXT,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		source_addr TEXT,
		auth_method TEXT,
		decision TEXT,
		error_message TEXT,
		metadata JSON,
		timestamp DATETIME NOT NULL,
		prev_token TEXT NOT NULL,
		integrity_token TEXT NOT NULL,
		UNIQUE(partition_key, sequence)
	);
	CREATE INDEX IF NOT EXISTS idx_audit_partition ON audit_events(partition_key, sequence);
	CREATE INDEX IF NOT EXISTS idx_audit_correlation ON audit_events(correlation_id);
	CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_events(timestamp);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

const auditColumns = `event_id, sequence, correlation_id, partition_key, actor_id, event_type,
	severity, command, parameters, result, elapsed_ms, source_addr, auth_method,
	decision, error_message, metadata, timestamp, prev_token, integrity_token`

func (s *SQLiteStore) Append(ctx context.Context, e contracts.AuditEvent) error {
	query := `INSERT INTO audit_events (` + auditColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	paramsJSON, _ := json.Marshal(e.Parameters)
	metaJSON, _ := json.Marshal(e.Metadata)
	_, err := s.db.ExecContext(ctx, query,
		e.EventID, e.Sequence, e.CorrelationID, e.Partition, e.ActorID, string(e.EventType),
		string(e.Severity), e.Command, string(paramsJSON), e.Result, e.ElapsedMs,
		e.SourceAddr, e.AuthMethod, string(e.Decision), e.ErrorMessage, string(metaJSON),
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.PrevToken, e.IntegrityToken)
	if err != nil {
		return fmt.Errorf("auditlog: insert %s: %w", e.EventID, err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]contracts.AuditEvent, error) {
	var conds []string
	var args []any
	if f.Partition != "" {
		conds = append(conds, "partition_key = ?")
		args = append(args, f.Partition)
	}
	if f.ActorID != "" {
		conds = append(conds, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if f.CorrelationID != "" {
		conds = append(conds, "correlation_id = ?")
		args = append(args, f.CorrelationID)
	}
	if f.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, string(f.EventType))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.Until.UTC().Format(time.RFC3339Nano))
	}

	query := `SELECT ` + auditColumns + ` FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY partition_key, sequence"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("auditlog: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.AuditEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LastInPartition(ctx context.Context, partition string) (contracts.AuditEvent, bool, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_events
		WHERE partition_key = ? ORDER BY sequence DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, partition)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.AuditEvent{}, false, nil
	}
	if err != nil {
		return contracts.AuditEvent{}, false, err
	}
	return e, true, nil
}

// Partitions lists every distinct partition in the store, for full
// database verification.
func (s *SQLiteStore) Partitions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT partition_key FROM audit_events ORDER BY partition_key`)
	if err != nil {
		return nil, fmt.Errorf("auditlog: partitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (contracts.AuditEvent, error) {
	var e contracts.AuditEvent
	var eventType, severity, decision, timestamp, paramsJSON, metaJSON string

	err := row.Scan(
		&e.EventID, &e.Sequence, &e.CorrelationID, &e.Partition, &e.ActorID, &eventType,
		&severity, &e.Command, &paramsJSON, &e.Result, &e.ElapsedMs,
		&e.SourceAddr, &e.AuthMethod, &decision, &e.ErrorMessage, &metaJSON,
		&timestamp, &e.PrevToken, &e.IntegrityToken)
	if err != nil {
		return contracts.AuditEvent{}, err
	}

	e.EventType = contracts.AuditEventType(eventType)
	e.Severity = contracts.AuditSeverity(severity)
	e.Decision = contracts.ReasonCode(decision)
	if e.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
		return contracts.AuditEvent{}, fmt.Errorf("auditlog: bad timestamp on %s: %w", e.EventID, err)
	}
	if paramsJSON != "" && paramsJSON != "null" {
		if err := json.Unmarshal([]byte(paramsJSON), &e.Parameters); err != nil {
			return contracts.AuditEvent{}, fmt.Errorf("auditlog: bad parameters on %s: %w", e.EventID, err)
		}
	}
	if metaJSON != "" && metaJSON != "null" {
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return contracts.AuditEvent{}, fmt.Errorf("auditlog: bad metadata on %s: %w", e.EventID, err)
		}
	}
	return e, nil
}
