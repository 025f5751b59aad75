// Package contracts defines the shared data model of the command safety
// gate: execution contexts, classifications, policy verdicts, queue
// entries, and audit events.
//
// Everything here is data-in/data-out. Types are created once and treated
// as immutable by consumers; the only mutable record is QueueEntry, which
// is advanced exclusively through the lifecycle package.
package contracts

import (
	"errors"
	"fmt"
)

// Role is an ordered trust tier bounding which commands a context may
// invoke without explicit human approval. Higher values carry more
// autonomy.
type Role int

const (
	// RoleManualApproval may not auto-approve anything.
	RoleManualApproval Role = iota
	// RoleReadOnly auto-approves query-class commands only.
	RoleReadOnly
	// RoleLimitedWrite may perform bounded mutations without approval.
	RoleLimitedWrite
	// RoleSupervised runs most operations but destructive ones are held.
	RoleSupervised
	// RoleFullAuto is the widest tier; flagged operations still require
	// a human.
	RoleFullAuto
)

var roleNames = map[Role]string{
	RoleManualApproval: "manual_approval",
	RoleReadOnly:       "read_only",
	RoleLimitedWrite:   "limited_write",
	RoleSupervised:     "supervised",
	RoleFullAuto:       "full_auto",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole maps a role name to its tier. Unknown names map to the most
// restrictive tier rather than failing open.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return RoleManualApproval, fmt.Errorf("unknown role %q", s)
}

// Valid reports whether the role is one of the defined tiers.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Environment identifies the deployment environment an agent runs in.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
	EnvIsolated    Environment = "isolated"
)

// Valid reports whether the environment is one of the defined values.
func (e Environment) Valid() bool {
	switch e {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvIsolated:
		return true
	}
	return false
}

// ExecutionContext identifies the actor requesting execution. It is
// created once per session and never mutated; the policy engine consumes
// it and every audit event carries a snapshot of it.
type ExecutionContext struct {
	AgentID     string      `json:"agent_id"`
	Role        Role        `json:"role"`
	Environment Environment `json:"environment"`
	SessionID   string      `json:"session_id"`
	UserID      string      `json:"user_id,omitempty"`
	TenantID    string      `json:"tenant_id,omitempty"`
}

var (
	ErrMissingAgentID     = errors.New("execution context: agent id is required")
	ErrMissingSessionID   = errors.New("execution context: session id is required")
	ErrInvalidRole        = errors.New("execution context: role is not a defined tier")
	ErrInvalidEnvironment = errors.New("execution context: environment is not a defined value")
)

// Validate enforces the context invariants. A failure here is a
// programming-contract violation by the caller, not a security event.
func (c ExecutionContext) Validate() error {
	if c.AgentID == "" {
		return ErrMissingAgentID
	}
	if c.SessionID == "" {
		return ErrMissingSessionID
	}
	if !c.Role.Valid() {
		return ErrInvalidRole
	}
	if !c.Environment.Valid() {
		return ErrInvalidEnvironment
	}
	return nil
}
