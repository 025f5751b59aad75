package policy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oversight-labs/opsgate/pkg/classifier"
	"github.com/oversight-labs/opsgate/pkg/contracts"
	"github.com/oversight-labs/opsgate/pkg/validator"
)

// Engine is the policy decision point. Decide is safe for concurrent
// use; the engine itself carries no per-request state.
type Engine struct {
	validator *validator.Validator
	roles     map[contracts.Role]RolePolicy
	schemas   *SchemaRegistry
	limiter   *AgentRateLimiter
	breaker   *CircuitBreaker
	timeouts  map[string]int
	log       *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRolePolicies replaces the built-in role table.
func WithRolePolicies(roles map[contracts.Role]RolePolicy) Option {
	return func(e *Engine) { e.roles = roles }
}

// WithValidator replaces the default-limit validator.
func WithValidator(v *validator.Validator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithSchemaRegistry installs per-verb parameter schemas.
func WithSchemaRegistry(r *SchemaRegistry) Option {
	return func(e *Engine) { e.schemas = r }
}

// WithRateLimiter installs a per-agent rate limiter. Without one the
// engine does not rate-limit.
func WithRateLimiter(rl *AgentRateLimiter) Option {
	return func(e *Engine) { e.limiter = rl }
}

// WithBreaker installs a circuit breaker on the decision path.
func WithBreaker(cb *CircuitBreaker) Option {
	return func(e *Engine) { e.breaker = cb }
}

// WithTimeoutOverrides replaces classified execution timeouts for the
// given command verbs (lowercase).
func WithTimeoutOverrides(timeouts map[string]int) Option {
	return func(e *Engine) { e.timeouts = timeouts }
}

// WithClock overrides the engine's time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine's logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine builds a decision engine with the built-in role policies
// and default validation limits unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		validator: validator.New(validator.DefaultLimits()),
		roles:     DefaultRolePolicies(),
		log:       slog.Default().With("component", "policy"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decision bundles the verdict with the evidence behind it, so callers
// can audit and queue without re-deriving anything.
type Decision struct {
	Verdict        contracts.PolicyVerdict
	Classification contracts.CommandClassification
	Validation     validator.Outcome
}

// Decide evaluates one command under one execution context. It never
// returns an error: every failure mode collapses into a deny verdict
// with the matching reason code.
func (e *Engine) Decide(ectx contracts.ExecutionContext, command string, params map[string]string) Decision {
	ts := e.now().UTC()

	if err := ectx.Validate(); err != nil {
		return e.deny(ectx, command, ts, contracts.ReasonContextViolation,
			fmt.Sprintf("invalid execution context: %v", err))
	}

	if e.breaker != nil && !e.breaker.Allow() {
		return e.deny(ectx, command, ts, contracts.ReasonCircuitBreakerOpen,
			"decision path circuit breaker is open")
	}

	if e.limiter != nil && !e.limiter.Allow(ectx.AgentID) {
		return e.deny(ectx, command, ts, contracts.ReasonRateLimitExceeded,
			fmt.Sprintf("agent %s exceeded its decision rate", ectx.AgentID))
	}

	outcome := e.validator.Scan(command, params)
	if !outcome.Valid {
		dom := outcome.Dominant()
		d := e.deny(ectx, command, ts, reasonForFinding(dom), dom.Message)
		d.Validation = outcome
		if e.breaker != nil {
			e.breaker.Success()
		}
		return d
	}

	if e.schemas != nil {
		if err := e.schemas.Validate(Verb(command), params); err != nil {
			d := e.deny(ectx, command, ts, contracts.ReasonInvalidParameters, err.Error())
			d.Validation = outcome
			if e.breaker != nil {
				e.breaker.Success()
			}
			return d
		}
	}

	cl := classifier.Classify(command)
	if t, ok := e.timeouts[Verb(command)]; ok && t > 0 {
		cl.TimeoutSeconds = t
	}

	rp, ok := e.roles[ectx.Role]
	if !ok {
		// Unknown role: most restrictive policy rather than failing open.
		rp = e.roles[contracts.RoleManualApproval]
	}

	if !rp.Allows(cl.Category) {
		d := e.deny(ectx, command, ts, contracts.ReasonNotWhitelisted,
			fmt.Sprintf("category %s is outside role %s", cl.Category, ectx.Role))
		d.Classification = cl
		d.Validation = outcome
		if e.breaker != nil {
			e.breaker.Success()
		}
		return d
	}

	// Held for a human when the classifier flagged the command or its
	// risk reaches the role's auto-approve ceiling. Either signal alone
	// suffices; auto-allow is never the fallback.
	requiresApproval := cl.RequiresApproval || cl.Risk >= rp.AutoApproveCeiling

	reason := contracts.ReasonAllowed
	msg := cl.Reasoning
	if requiresApproval {
		reason = contracts.ReasonApprovalRequired
		if cl.RequiresApproval {
			msg = fmt.Sprintf("%s command requires human approval", cl.Risk)
		} else {
			msg = fmt.Sprintf("%s risk exceeds role %s auto-approve authority", cl.Risk, ectx.Role)
		}
	}

	if e.breaker != nil {
		e.breaker.Success()
	}

	v := contracts.PolicyVerdict{
		DecisionID:       uuid.NewString(),
		Allowed:          true,
		Reason:           reason,
		Message:          msg,
		RequiresApproval: requiresApproval,
		Context:          ectx,
		Command:          command,
		Timestamp:        ts,
	}
	e.log.Debug("decision",
		"decision_id", v.DecisionID,
		"agent_id", ectx.AgentID,
		"reason", string(reason),
		"risk", cl.Risk.String(),
		"requires_approval", requiresApproval)

	return Decision{Verdict: v, Classification: cl, Validation: outcome}
}

func (e *Engine) deny(ectx contracts.ExecutionContext, command string, ts time.Time, reason contracts.ReasonCode, msg string) Decision {
	v := contracts.PolicyVerdict{
		DecisionID: uuid.NewString(),
		Allowed:    false,
		Reason:     reason,
		Message:    msg,
		Context:    ectx,
		Command:    command,
		Timestamp:  ts,
	}
	e.log.Info("denied",
		"decision_id", v.DecisionID,
		"agent_id", ectx.AgentID,
		"reason", string(reason))
	return Decision{Verdict: v}
}

// reasonForFinding maps the dominant validation finding to the verdict
// reason code. Threat-classified injections get their specific code so
// audits can distinguish attack families.
func reasonForFinding(f validator.Finding) contracts.ReasonCode {
	switch f.Class {
	case validator.ThreatPrivilegeEscalation:
		return contracts.ReasonPrivilegeEscalation
	case validator.ThreatLateralMovement:
		return contracts.ReasonLateralMovement
	case validator.ThreatDataExfiltration:
		return contracts.ReasonDataExfiltration
	}
	switch f.Kind {
	case validator.KindSyntaxError, validator.KindLengthExceeded:
		return contracts.ReasonInvalidSyntax
	case validator.KindNullByteDetected, validator.KindInvalidParameterName, validator.KindInvalidCharacter:
		return contracts.ReasonInvalidParameters
	case validator.KindEncodingAttempt:
		return contracts.ReasonObfuscationDetected
	case validator.KindCommandInjection, validator.KindPathTraversal:
		return contracts.ReasonContextViolation
	case validator.KindDangerousPattern:
		return contracts.ReasonSemanticViolation
	}
	return contracts.ReasonSemanticViolation
}
