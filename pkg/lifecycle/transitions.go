// Package lifecycle owns the durable state machine of authorized
// commands. Every status change flows through Manager, which enforces
// the transition table and loses races loudly: concurrent conflicting
// transitions resolve to exactly one winner, the rest get ErrConflict.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/oversight-labs/opsgate/pkg/contracts"
)

// ActorKind identifies who is requesting a transition. The table is
// actor-sensitive: only a human may approve, only the system may mark
// a timeout.
type ActorKind string

const (
	ActorHuman  ActorKind = "human"
	ActorAgent  ActorKind = "agent"
	ActorSystem ActorKind = "system"
)

// ErrConflict is the sentinel wrapped by every rejected transition.
var ErrConflict = errors.New("lifecycle: transition conflict")

// ErrNotFound is returned when a command id is unknown to the store.
var ErrNotFound = errors.New("lifecycle: entry not found")

// ErrMissingApprover is returned when a human decision arrives without
// an approver identity.
var ErrMissingApprover = errors.New("lifecycle: approver identity is required")

// ConflictError reports a rejected transition with enough detail for
// the caller to log and for audits to reconstruct the race.
type ConflictError struct {
	CommandID string
	From      contracts.Status
	To        contracts.Status
	Actor     ActorKind
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("lifecycle: %s cannot move %s from %s to %s", e.Actor, e.CommandID, e.From, e.To)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// transition holds the permitted (from, to) pairs and which actors may
// request each. Anything absent is a conflict.
var transitions = map[contracts.Status]map[contracts.Status][]ActorKind{
	contracts.StatusPending: {
		contracts.StatusApproved:  {ActorHuman},
		contracts.StatusCancelled: {ActorHuman, ActorAgent, ActorSystem},
	},
	contracts.StatusApproved: {
		contracts.StatusExecuting: {ActorAgent, ActorSystem},
		contracts.StatusCancelled: {ActorHuman, ActorAgent, ActorSystem},
	},
	contracts.StatusExecuting: {
		contracts.StatusCompleted: {ActorAgent, ActorSystem},
		contracts.StatusFailed:    {ActorAgent, ActorSystem},
		contracts.StatusTimedOut:  {ActorSystem},
	},
}

// Transition validates one requested status change. A nil return means
// the change is permitted for this actor; otherwise a *ConflictError
// wrapping ErrConflict.
func Transition(commandID string, current, requested contracts.Status, actor ActorKind) error {
	if allowed, ok := transitions[current][requested]; ok {
		for _, a := range allowed {
			if a == actor {
				return nil
			}
		}
	}
	return &ConflictError{CommandID: commandID, From: current, To: requested, Actor: actor}
}
