package contracts

import "time"

// Status is a queue entry's lifecycle state.
//
//	Pending -> Approved -> Executing -> {Completed, Failed, TimedOut}
//	Pending -> Cancelled
//	Approved -> Cancelled
//
// Completed, Failed, TimedOut, and Cancelled are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// Approval captures the human decision attached to a queue entry.
// Approved is nil until a decision is made; auto-approved entries record
// no approver identity.
type Approval struct {
	Required   bool       `json:"required"`
	Approved   *bool      `json:"approved,omitempty"`
	ApproverID string     `json:"approver_id,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}

// QueueEntry is the durable lifecycle record of one authorized command.
// Entries are never deleted; a terminal status supersedes them.
type QueueEntry struct {
	CommandID      string     `json:"command_id"`
	DecisionID     string     `json:"decision_id"`
	AgentID        string     `json:"agent_id"`
	Command        string     `json:"command"`
	ContextNote    string     `json:"context_note,omitempty"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Stdout         string     `json:"stdout,omitempty"`
	Stderr         string     `json:"stderr,omitempty"`
	ElapsedMs      int64      `json:"elapsed_ms"`
	TimeoutSeconds int        `json:"timeout_seconds"`
	Success        bool       `json:"success"`
	InitiatorID    string     `json:"initiator_id"`
	SessionID      string     `json:"session_id,omitempty"`
	Approval       Approval   `json:"approval"`
}
