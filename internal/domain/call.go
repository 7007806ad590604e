package domain

import (
	"fmt"
	"time"
)

type (
	CallID     string
	CallStatus string
)

const (
	CallRinging CallStatus = "ringing"
	CallActive  CallStatus = "active"
	CallEnded   CallStatus = "ended"
)

// Call is a pairwise voice/video call between two connected users.
// It lives only in the call table and dies on any terminal transition.
type Call struct {
	ID              CallID
	Initiator       UserID
	Recipient       UserID
	Video           bool
	Status          CallStatus
	CreatedAt       time.Time
	ActiveSince     time.Time // zero until the ringing -> active transition
	InitiatorJoined bool
	RecipientJoined bool
}

// Participant reports whether id is one of the two call parties.
func (c *Call) Participant(id UserID) bool {
	return c.Initiator == id || c.Recipient == id
}

// Peer returns the other party for id, or "" if id is not a participant.
func (c *Call) Peer(id UserID) UserID {
	switch id {
	case c.Initiator:
		return c.Recipient
	case c.Recipient:
		return c.Initiator
	}
	return ""
}

// NewCallID derives an identifier from both participants and the creation
// instant. IDs are never reused; collision probability is negligible.
func NewCallID(initiator, recipient UserID, at time.Time) CallID {
	return CallID(fmt.Sprintf("%s-%s-%d", initiator, recipient, at.UnixNano()))
}

// CanTransition reports whether s -> to is a legal lifecycle step.
// Legal steps: ringing -> active, ringing -> ended, active -> ended.
func (s CallStatus) CanTransition(to CallStatus) bool {
	switch {
	case s == CallRinging && to == CallActive,
		s == CallRinging && to == CallEnded,
		s == CallActive && to == CallEnded:
		return true
	}
	return false
}

// CallPointer is the per-user index entry referencing the call its owner is
// currently part of. Its status always agrees with the call table entry.
type CallPointer struct {
	Call   CallID
	Status CallStatus
	Peer   UserID
	Since  time.Time
}
