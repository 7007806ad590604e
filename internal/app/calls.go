package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/keremar/Amora/internal/core"
	"github.com/keremar/Amora/internal/domain"
)

var (
	ErrBusy          = errors.New("participant already in a call")
	ErrNoSuchCall    = errors.New("no such call")
	ErrBadTransition = errors.New("illegal call transition")
)

// CallTable owns the call map and the per-user call index as one unit.
// Both maps are mutated inside a single critical section so a call entry and
// its two pointers are always created and destroyed together.
type CallTable struct {
	mu     sync.Mutex
	clock  core.Clock
	calls  map[domain.CallID]*domain.Call
	byUser map[domain.UserID]*domain.CallPointer
}

func NewCallTable(clock core.Clock) *CallTable {
	return &CallTable{
		clock:  clock,
		calls:  make(map[domain.CallID]*domain.Call),
		byUser: make(map[domain.UserID]*domain.CallPointer),
	}
}

// Create starts a ringing call and sets both participants' pointers.
// It refuses with ErrBusy when either side already holds a pointer: a second
// pointer for the same identity would break the one-call-per-user index.
func (t *CallTable) Create(initiator, recipient domain.UserID, video bool) (domain.Call, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.byUser[recipient]; ok && p.Status != domain.CallEnded {
		return domain.Call{}, ErrBusy
	}
	if p, ok := t.byUser[initiator]; ok && p.Status != domain.CallEnded {
		return domain.Call{}, ErrBusy
	}

	now := t.clock.Now()
	c := &domain.Call{
		ID:        domain.NewCallID(initiator, recipient, now),
		Initiator: initiator,
		Recipient: recipient,
		Video:     video,
		Status:    domain.CallRinging,
		CreatedAt: now,
	}
	t.calls[c.ID] = c
	t.byUser[initiator] = &domain.CallPointer{Call: c.ID, Status: c.Status, Peer: recipient, Since: now}
	t.byUser[recipient] = &domain.CallPointer{Call: c.ID, Status: c.Status, Peer: initiator, Since: now}

	log.Info().Str("module", "app.calls").
		Str("call", string(c.ID)).
		Str("from", string(initiator)).
		Str("to", string(recipient)).
		Bool("video", video).
		Msg("call created")
	return *c, nil
}

// Transition applies a lifecycle step and keeps both pointers in agreement.
// Illegal steps are rejected with ErrBadTransition and nothing changes.
func (t *CallTable) Transition(id domain.CallID, to domain.CallStatus) (domain.Call, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[id]
	if !ok {
		return domain.Call{}, ErrNoSuchCall
	}
	if !c.Status.CanTransition(to) {
		return domain.Call{}, ErrBadTransition
	}
	c.Status = to
	if to == domain.CallActive {
		c.ActiveSince = t.clock.Now()
	}
	for _, uid := range []domain.UserID{c.Initiator, c.Recipient} {
		if p, ok := t.byUser[uid]; ok && p.Call == id {
			p.Status = to
		}
	}
	log.Info().Str("module", "app.calls").Str("call", string(id)).Str("status", string(to)).Msg("call transitioned")
	return *c, nil
}

// Remove deletes the call entry and both participants' pointers atomically.
// It returns the removed call so callers can derive a duration from it.
func (t *CallTable) Remove(id domain.CallID) (domain.Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[id]
	if !ok {
		return domain.Call{}, false
	}
	delete(t.calls, id)
	for _, uid := range []domain.UserID{c.Initiator, c.Recipient} {
		if p, ok := t.byUser[uid]; ok && p.Call == id {
			delete(t.byUser, uid)
		}
	}
	log.Info().Str("module", "app.calls").Str("call", string(id)).Msg("call removed")
	return *c, true
}

// PointerFor returns a copy of id's call pointer, if any.
func (t *CallTable) PointerFor(id domain.UserID) (domain.CallPointer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byUser[id]
	if !ok {
		return domain.CallPointer{}, false
	}
	return *p, true
}

func (t *CallTable) Get(id domain.CallID) (domain.Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if !ok {
		return domain.Call{}, false
	}
	return *c, true
}

// SetJoined flags user as having joined its current call's media session.
func (t *CallTable) SetJoined(id domain.CallID, user domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if !ok || !c.Participant(user) {
		return false
	}
	if user == c.Initiator {
		c.InitiatorJoined = true
	} else {
		c.RecipientJoined = true
	}
	return true
}

// Len is the number of live calls, for the stats surface.
func (t *CallTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
