// Package gate composes the safety pipeline: validation, classification,
// policy decision, lifecycle queueing, and audit recording. A Gate is the
// single entry point collaborating services use; the component packages
// stay independently testable underneath it.
package gate

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/oversight-labs/opsgate/pkg/auditlog"
	"github.com/oversight-labs/opsgate/pkg/classifier"
	"github.com/oversight-labs/opsgate/pkg/contracts"
	"github.com/oversight-labs/opsgate/pkg/lifecycle"
	"github.com/oversight-labs/opsgate/pkg/observability"
	"github.com/oversight-labs/opsgate/pkg/policy"
	"github.com/oversight-labs/opsgate/pkg/validator"
)

// Clock provides authority time for the Gate.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Gate evaluates commands and owns their queue lifecycle afterwards.
type Gate struct {
	engine *policy.Engine
	queue  *lifecycle.Manager
	ledger *auditlog.Ledger
	obs    *observability.Provider
	clock  Clock
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock overrides the gate's time source. Test hook.
func WithClock(c Clock) GateOption {
	return func(g *Gate) { g.clock = c }
}

// WithObservability attaches a telemetry provider.
func WithObservability(p *observability.Provider) GateOption {
	return func(g *Gate) { g.obs = p }
}

func New(engine *policy.Engine, queue *lifecycle.Manager, ledger *auditlog.Ledger, opts ...GateOption) *Gate {
	g := &Gate{
		engine: engine,
		queue:  queue,
		ledger: ledger,
		clock:  wallClock{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.obs == nil {
		p, _ := observability.New(context.Background(), nil)
		g.obs = p
	}
	return g
}

// Evaluation is the gate's answer for one command: the verdict, its
// evidence, and the queue entry when the command was admitted.
type Evaluation struct {
	Verdict        contracts.PolicyVerdict
	Classification contracts.CommandClassification
	Validation     validator.Outcome
	Entry          *contracts.QueueEntry
}

// EvaluateCommand runs one command through the full pipeline. Admitted
// commands are enqueued; everything is audited either way. The audit
// ledger can never veto or delay the verdict.
func (g *Gate) EvaluateCommand(ctx context.Context, ectx contracts.ExecutionContext, command string, params map[string]string, contextNote string) (Evaluation, error) {
	ctx, done := g.obs.TrackOperation(ctx, "gate.evaluate",
		attribute.String("agent_id", ectx.AgentID))

	d := g.engine.Decide(ectx, command, params)
	g.obs.RecordDecision(ctx, d.Verdict.Reason, d.Verdict.Allowed)

	ev := Evaluation{
		Verdict:        d.Verdict,
		Classification: d.Classification,
		Validation:     d.Validation,
	}

	if !d.Verdict.Allowed {
		g.auditVerdict(ctx, d, params)
		done(nil)
		return ev, nil
	}

	entry, err := g.queue.Submit(ctx, d.Verdict, d.Classification, contextNote)
	if err != nil {
		g.auditVerdict(ctx, d, params)
		done(err)
		return ev, err
	}
	ev.Entry = &entry

	g.auditVerdict(ctx, d, params)
	g.auditTransition(ctx, entry, "", entry.Status)
	done(nil)
	return ev, nil
}

// SubmitResponse extracts candidate commands from AI response text and
// evaluates each one independently, in order of appearance. One
// malicious line never shadows its siblings.
func (g *Gate) SubmitResponse(ctx context.Context, ectx contracts.ExecutionContext, response string, contextNote string) ([]Evaluation, error) {
	commands := classifier.ExtractCommands(response)
	out := make([]Evaluation, 0, len(commands))
	for _, cmd := range commands {
		ev, err := g.EvaluateCommand(ctx, ectx, cmd, nil, contextNote)
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Approve records a human decision on a pending entry.
func (g *Gate) Approve(ctx context.Context, commandID, approverID string, approved bool) (contracts.QueueEntry, error) {
	return g.transition(ctx, func() (contracts.QueueEntry, error) {
		return g.queue.Approve(ctx, commandID, approverID, approved)
	})
}

// Cancel withdraws an entry before execution starts.
func (g *Gate) Cancel(ctx context.Context, commandID string, actor lifecycle.ActorKind) (contracts.QueueEntry, error) {
	return g.transition(ctx, func() (contracts.QueueEntry, error) {
		return g.queue.Cancel(ctx, commandID, actor)
	})
}

// ReportStart marks an approved entry as executing.
func (g *Gate) ReportStart(ctx context.Context, commandID string) (contracts.QueueEntry, error) {
	return g.transition(ctx, func() (contracts.QueueEntry, error) {
		return g.queue.ReportStart(ctx, commandID)
	})
}

// ReportCompletion records a successful execution result.
func (g *Gate) ReportCompletion(ctx context.Context, commandID, stdout, stderr string, elapsedMs int64) (contracts.QueueEntry, error) {
	return g.transition(ctx, func() (contracts.QueueEntry, error) {
		return g.queue.ReportCompletion(ctx, commandID, stdout, stderr, elapsedMs)
	})
}

// ReportFailure records a failed execution result.
func (g *Gate) ReportFailure(ctx context.Context, commandID, stdout, stderr string, elapsedMs int64) (contracts.QueueEntry, error) {
	return g.transition(ctx, func() (contracts.QueueEntry, error) {
		return g.queue.ReportFailure(ctx, commandID, stdout, stderr, elapsedMs)
	})
}

// CheckTimeouts expires executing entries past their deadline.
func (g *Gate) CheckTimeouts(ctx context.Context) ([]contracts.QueueEntry, error) {
	expired, err := g.queue.CheckTimeouts(ctx)
	for _, e := range expired {
		g.auditTransition(ctx, e, contracts.StatusExecuting, e.Status)
	}
	return expired, err
}

// Entry returns one queue entry.
func (g *Gate) Entry(ctx context.Context, commandID string) (contracts.QueueEntry, error) {
	return g.queue.Get(ctx, commandID)
}

// Entries lists queue entries matching the filter.
func (g *Gate) Entries(ctx context.Context, f lifecycle.Filter) ([]contracts.QueueEntry, error) {
	return g.queue.List(ctx, f)
}

// Audit queries the ledger.
func (g *Gate) Audit(ctx context.Context, f auditlog.Filter) ([]contracts.AuditEvent, error) {
	return g.ledger.Query(ctx, f)
}

func (g *Gate) transition(ctx context.Context, fn func() (contracts.QueueEntry, error)) (contracts.QueueEntry, error) {
	entry, err := fn()
	if err != nil {
		if errors.Is(err, lifecycle.ErrConflict) {
			g.obs.RecordConflict(ctx)
		}
		return contracts.QueueEntry{}, err
	}
	g.auditTransition(ctx, entry, "", entry.Status)
	return entry, nil
}

func (g *Gate) auditVerdict(ctx context.Context, d policy.Decision, params map[string]string) {
	severity := contracts.AuditInfo
	eventType := contracts.AuditPolicyDecision
	if !d.Verdict.Allowed {
		severity = contracts.AuditWarning
		// Denies minted before the validator ran carry an empty outcome;
		// only actual findings reclassify the event.
		if len(d.Validation.Findings) > 0 && !d.Validation.Valid {
			eventType = contracts.AuditValidationFailure
			if d.Validation.Severity >= validator.SeverityCritical {
				severity = contracts.AuditCritical
				eventType = contracts.AuditSecurityEvent
			}
		}
	}

	g.ledger.Record(ctx, contracts.AuditEvent{
		CorrelationID: d.Verdict.DecisionID,
		Partition:     auditlog.Partition(d.Verdict.Context.AgentID, d.Verdict.Context.SessionID),
		ActorID:       d.Verdict.Context.AgentID,
		EventType:     eventType,
		Severity:      severity,
		Command:       d.Verdict.Command,
		Parameters:    params,
		Decision:      d.Verdict.Reason,
		Result:        boolWord(d.Verdict.Allowed, "allowed", "denied"),
		ErrorMessage:  d.Verdict.Message,
		Timestamp:     g.clock.Now().UTC(),
	})
}

func (g *Gate) auditTransition(ctx context.Context, e contracts.QueueEntry, from, to contracts.Status) {
	meta := map[string]string{"to": string(to)}
	if from != "" {
		meta["from"] = string(from)
	}
	g.ledger.Record(ctx, contracts.AuditEvent{
		CorrelationID: e.DecisionID,
		Partition:     auditlog.Partition(e.AgentID, e.SessionID),
		ActorID:       e.AgentID,
		EventType:     contracts.AuditLifecycleTransition,
		Severity:      contracts.AuditInfo,
		Command:       e.Command,
		Result:        string(to),
		Metadata:      meta,
		Timestamp:     g.clock.Now().UTC(),
	})
}

func boolWord(b bool, t, f string) string {
	if b {
		return t
	}
	return f
}
