// Package auditlog is the append-only ledger of gate activity. Events
// are hash-chained per partition (one chain per agent/session pair) so
// any single-record tamper is detectable without external state.
//
// Recording is deliberately infallible from the caller's point of view:
// a verdict must never be blocked by ledger trouble. Persistence errors
// are counted, logged, and handed to an optional failure handler.
package auditlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/oversight-labs/opsgate/pkg/contracts"
)

// GenesisToken anchors every partition's chain.
const GenesisToken = "genesis"

// Partition derives the chain key for an agent/session pair.
func Partition(agentID, sessionID string) string {
	if sessionID == "" {
		return agentID
	}
	return agentID + "/" + sessionID
}

type chainState struct {
	sequence uint64
	head     string
}

// Ledger appends chained audit events to a Store.
type Ledger struct {
	mu     sync.Mutex
	store  Store
	chains map[string]*chainState

	failures  atomic.Uint64
	onFailure func(contracts.AuditEvent, error)
	log       *slog.Logger
	now       func() time.Time
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithClock overrides the ledger's time source. Test hook.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithFailureHandler registers a callback invoked for every event the
// ledger failed to persist. The event passed is fully tokenized.
func WithFailureHandler(fn func(contracts.AuditEvent, error)) LedgerOption {
	return func(l *Ledger) { l.onFailure = fn }
}

// WithLogger sets the ledger's logger.
func WithLogger(log *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.log = log }
}

func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:  store,
		chains: make(map[string]*chainState),
		log:    slog.Default().With("component", "auditlog"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends one event to its partition's chain. It fills EventID,
// Sequence, Timestamp (when zero), PrevToken, and IntegrityToken, and
// returns the completed event. Persistence failure never reaches the
// caller; it is counted and reported through the failure handler.
func (l *Ledger) Record(ctx context.Context, e contracts.AuditEvent) contracts.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	if e.Partition == "" {
		e.Partition = Partition(e.ActorID, "")
	}

	chain, err := l.chain(ctx, e.Partition)
	if err != nil {
		l.fail(e, fmt.Errorf("auditlog: load chain head: %w", err))
		return e
	}

	e.Sequence = chain.sequence + 1
	e.PrevToken = chain.head

	token, err := IntegrityToken(e)
	if err != nil {
		l.fail(e, fmt.Errorf("auditlog: tokenize: %w", err))
		return e
	}
	e.IntegrityToken = token

	if err := l.store.Append(ctx, e); err != nil {
		l.fail(e, fmt.Errorf("auditlog: append: %w", err))
		return e
	}

	chain.sequence = e.Sequence
	chain.head = e.IntegrityToken
	return e
}

// FailureCount returns how many events could not be persisted since
// the ledger was created.
func (l *Ledger) FailureCount() uint64 {
	return l.failures.Load()
}

// Query returns events matching the filter, in chain order per
// partition.
func (l *Ledger) Query(ctx context.Context, f Filter) ([]contracts.AuditEvent, error) {
	return l.store.Query(ctx, f)
}

// chain loads the partition state, hydrating from the store on first
// touch so the ledger survives process restarts.
func (l *Ledger) chain(ctx context.Context, partition string) (*chainState, error) {
	if c, ok := l.chains[partition]; ok {
		return c, nil
	}
	c := &chainState{head: GenesisToken}
	last, ok, err := l.store.LastInPartition(ctx, partition)
	if err != nil {
		return nil, err
	}
	if ok {
		c.sequence = last.Sequence
		c.head = last.IntegrityToken
	}
	l.chains[partition] = c
	return c, nil
}

func (l *Ledger) fail(e contracts.AuditEvent, err error) {
	l.failures.Add(1)
	l.log.Error("audit write failed",
		"event_id", e.EventID,
		"partition", e.Partition,
		"err", err)
	if l.onFailure != nil {
		l.onFailure(e, err)
	}
}

// IntegrityToken computes the event's chained token: sha256 over the
// RFC 8785 canonical JSON of everything except the token itself.
func IntegrityToken(e contracts.AuditEvent) (string, error) {
	e.IntegrityToken = ""
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// VerifyEvent recomputes the event's token and reports whether the
// stored one matches.
func VerifyEvent(e contracts.AuditEvent) bool {
	token, err := IntegrityToken(e)
	if err != nil {
		return false
	}
	return token == e.IntegrityToken
}

// VerifyChain walks a partition's chain from genesis and returns the
// event ids that fail verification, either because their own token is
// wrong or because the chain linkage around them is broken. An empty
// slice means the partition is intact.
func (l *Ledger) VerifyChain(ctx context.Context, partition string) ([]string, error) {
	events, err := l.store.Query(ctx, Filter{Partition: partition})
	if err != nil {
		return nil, err
	}

	var compromised []string
	prev := GenesisToken
	for _, e := range events {
		if e.PrevToken != prev || !VerifyEvent(e) {
			compromised = append(compromised, e.EventID)
		}
		prev = e.IntegrityToken
	}
	return compromised, nil
}
