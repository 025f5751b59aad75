package contracts

import "time"

// AuditEventType categorizes audit events emitted by the gate.
type AuditEventType string

const (
	AuditPolicyDecision      AuditEventType = "policy_decision"
	AuditLifecycleTransition AuditEventType = "lifecycle_transition"
	AuditValidationFailure   AuditEventType = "validation_failure"
	AuditSecurityEvent       AuditEventType = "security_event"
	AuditSystemEvent         AuditEventType = "system_event"
)

// AuditSeverity grades an audit event for compliance review.
type AuditSeverity string

const (
	AuditInfo     AuditSeverity = "info"
	AuditWarning  AuditSeverity = "warning"
	AuditError    AuditSeverity = "error"
	AuditCritical AuditSeverity = "critical"
)

// AuditEvent is one immutable record of a decision or lifecycle
// transition. The IntegrityToken is derived from the event content and
// the previous event's token in the same partition, so any single-record
// tamper is locally detectable. Never mutated after creation.
type AuditEvent struct {
	EventID        string            `json:"event_id"`
	Sequence       uint64            `json:"sequence"`
	CorrelationID  string            `json:"correlation_id"`
	Partition      string            `json:"partition"`
	ActorID        string            `json:"actor_id"`
	EventType      AuditEventType    `json:"event_type"`
	Severity       AuditSeverity     `json:"severity"`
	Command        string            `json:"command,omitempty"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	Result         string            `json:"result,omitempty"`
	ElapsedMs      int64             `json:"elapsed_ms,omitempty"`
	SourceAddr     string            `json:"source_addr,omitempty"`
	AuthMethod     string            `json:"auth_method,omitempty"`
	Decision       ReasonCode        `json:"decision,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	PrevToken      string            `json:"prev_token"`
	IntegrityToken string            `json:"integrity_token"`
}
