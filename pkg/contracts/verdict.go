package contracts

import "time"

// ReasonCode is the stable enumerated explanation attached to a policy
// verdict, used for audit correlation and client messaging.
type ReasonCode string

const (
	ReasonAllowed                 ReasonCode = "ALLOWED"
	ReasonBlacklisted             ReasonCode = "BLACKLISTED"
	ReasonNotWhitelisted          ReasonCode = "NOT_WHITELISTED"
	ReasonInvalidSyntax           ReasonCode = "INVALID_SYNTAX"
	ReasonInvalidParameters       ReasonCode = "INVALID_PARAMETERS"
	ReasonSemanticViolation       ReasonCode = "SEMANTIC_VIOLATION"
	ReasonContextViolation        ReasonCode = "CONTEXT_VIOLATION"
	ReasonRateLimitExceeded       ReasonCode = "RATE_LIMIT_EXCEEDED"
	ReasonInsufficientPermissions ReasonCode = "INSUFFICIENT_PERMISSIONS"
	ReasonApprovalRequired        ReasonCode = "APPROVAL_REQUIRED"
	ReasonInternalError           ReasonCode = "INTERNAL_ERROR"
	ReasonCircuitBreakerOpen      ReasonCode = "CIRCUIT_BREAKER_OPEN"
	ReasonPrivilegeEscalation     ReasonCode = "PRIVILEGE_ESCALATION"
	ReasonLateralMovement         ReasonCode = "LATERAL_MOVEMENT"
	ReasonDataExfiltration        ReasonCode = "DATA_EXFILTRATION"
	ReasonObfuscationDetected     ReasonCode = "OBFUSCATION_DETECTED"
)

// PolicyVerdict is the gate's final decision for one command. Immutable
// once created; the DecisionID correlates every subsequent lifecycle
// transition and audit event back to the decision that authorized it.
type PolicyVerdict struct {
	DecisionID       string           `json:"decision_id"`
	Allowed          bool             `json:"allowed"`
	Reason           ReasonCode       `json:"reason"`
	Message          string           `json:"message,omitempty"`
	RequiresApproval bool             `json:"requires_approval"`
	Context          ExecutionContext `json:"context"`
	Command          string           `json:"command"`
	Timestamp        time.Time        `json:"timestamp"`
}
