package app

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/keremar/Amora/internal/core"
	"github.com/keremar/Amora/internal/domain"
	"github.com/keremar/Amora/internal/protocol"
)

// Client is the router-facing view of one connection. ID stays empty until
// the connection sends a register envelope.
type Client struct {
	Conn core.PeerConnection
	ID   domain.UserID
}

// Router dispatches inbound envelopes by kind, mutates the call table and
// the session registry, and forwards envelopes to peer connections. All
// failures are contained here: nothing propagates into transport code, and a
// misbehaving sender only ever sees an explicit reply (call_busy,
// call_unavailable) or silence.
type Router struct {
	Registry  *Registry
	Calls     *CallTable
	Presence  *Presence
	Directory core.Directory
	Clock     core.Clock
	Limiter   *CallRateLimiter
}

// HandleFrame processes one inbound envelope. Unknown kinds and malformed
// payloads are logged and dropped; the connection stays open.
func (rt *Router) HandleFrame(c *Client, data core.Frame) {
	kind, err := protocol.Peek(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("user", string(c.ID)).Msg("malformed envelope")
		return
	}

	if kind != protocol.KindRegister && c.ID == "" {
		log.Warn().Str("module", "app.router").Str("kind", string(kind)).Msg("envelope before register")
		return
	}

	switch kind {
	case protocol.KindRegister:
		rt.handleRegister(c, data)
	case protocol.KindPing:
		rt.handlePing(c)
	case protocol.KindTypingStatus:
		rt.handleTyping(c, data)
	case protocol.KindCallIncoming:
		rt.handleCallIncoming(c, data)
	case protocol.KindUserJoinedCall:
		rt.handleUserJoined(c, data)
	case protocol.KindCallOffer:
		if p, err := protocol.Decode[protocol.CallOffer](data); err == nil {
			rt.forwardRaw(domain.UserID(p.To), data)
		} else {
			rt.logMalformed(c, kind, err)
		}
	case protocol.KindCallAnswer:
		if p, err := protocol.Decode[protocol.CallAnswer](data); err == nil {
			rt.forwardRaw(domain.UserID(p.To), data)
		} else {
			rt.logMalformed(c, kind, err)
		}
	case protocol.KindICECandidate:
		if p, err := protocol.Decode[protocol.ICECandidate](data); err == nil {
			rt.forwardRaw(domain.UserID(p.To), data)
		} else {
			rt.logMalformed(c, kind, err)
		}
	case protocol.KindCallAccepted:
		rt.handleCallAccepted(c)
	case protocol.KindCallRejected:
		rt.handleCallRejected(c)
	case protocol.KindCallEnd:
		rt.handleCallEnd(c, data)
	default:
		log.Warn().Str("module", "app.router").Str("kind", string(kind)).Msg("unknown envelope kind")
	}
}

func (rt *Router) handleRegister(c *Client, data core.Frame) {
	p, err := protocol.Decode[protocol.Register](data)
	if err != nil {
		rt.logMalformed(c, protocol.KindRegister, err)
		return
	}
	id := domain.UserID(p.UserID)
	if err := domain.ValidateIdentity(id); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Msg("register rejected")
		return
	}

	prev := rt.Registry.Register(id, c.Conn)
	c.ID = id
	if prev != nil {
		// Superseded handle: close it so its write pump exits.
		prev.Close()
	}
	rt.Presence.Online(id)
}

func (rt *Router) handlePing(c *Client) {
	rt.sendJSON(c.Conn, protocol.Pong{Type: protocol.KindPong, TS: rt.Clock.Now().Unix()})
	rt.touchLastActive(c.ID)
}

// handleTyping relays the indicator to every other reachable session.
// The relay model is broadcast, not targeted; clients filter by chatId.
func (rt *Router) handleTyping(c *Client, data core.Frame) {
	if _, err := protocol.Decode[protocol.TypingStatus](data); err != nil {
		rt.logMalformed(c, protocol.KindTypingStatus, err)
		return
	}
	for _, snap := range rt.Registry.Snapshot() {
		if snap.ID == c.ID || !snap.Conn.Ready() {
			continue
		}
		if err := snap.Conn.TrySend(data); err != nil {
			log.Debug().Str("module", "app.router").Str("user", string(snap.ID)).Msg("typing_status dropped")
		}
	}
}

func (rt *Router) handleCallIncoming(c *Client, data core.Frame) {
	p, err := protocol.Decode[protocol.CallIncoming](data)
	if err != nil || p.To == "" {
		rt.logMalformed(c, protocol.KindCallIncoming, err)
		return
	}
	target := domain.UserID(p.To)

	if rt.Limiter != nil && !rt.Limiter.Allow(c.ID) {
		log.Warn().Str("module", "app.router").Str("user", string(c.ID)).Msg("call attempt rate limited")
		rt.sendJSON(c.Conn, protocol.CallUnavailable{Type: protocol.KindCallUnavailable, To: p.To, ChatID: p.ChatID})
		return
	}

	if ptr, ok := rt.Calls.PointerFor(target); ok && ptr.Status != domain.CallEnded {
		rt.sendJSON(c.Conn, protocol.CallBusy{Type: protocol.KindCallBusy, To: p.To, ChatID: p.ChatID})
		return
	}
	if !rt.Registry.IsReachable(target) {
		rt.sendJSON(c.Conn, protocol.CallUnavailable{Type: protocol.KindCallUnavailable, To: p.To, ChatID: p.ChatID})
		return
	}

	call, err := rt.Calls.Create(c.ID, target, p.IsVideo)
	if err != nil {
		// Lost the race for the table, or the caller itself is mid-call.
		if errors.Is(err, ErrBusy) {
			rt.sendJSON(c.Conn, protocol.CallBusy{Type: protocol.KindCallBusy, To: p.To, ChatID: p.ChatID})
		}
		return
	}

	p.From = string(c.ID)
	p.CallID = string(call.ID)
	if conn, ok := rt.Registry.Lookup(target); ok {
		rt.sendJSON(conn, p)
	}
}

func (rt *Router) handleUserJoined(c *Client, data core.Frame) {
	p, err := protocol.Decode[protocol.UserJoinedCall](data)
	if err != nil || p.To == "" {
		rt.logMalformed(c, protocol.KindUserJoinedCall, err)
		return
	}
	if ptr, ok := rt.Calls.PointerFor(c.ID); ok {
		rt.Calls.SetJoined(ptr.Call, c.ID)
	}
	rt.forwardRaw(domain.UserID(p.To), data)
}

func (rt *Router) handleCallAccepted(c *Client) {
	ptr, ok := rt.Calls.PointerFor(c.ID)
	if !ok {
		log.Debug().Str("module", "app.router").Str("user", string(c.ID)).Msg("call_accepted without a call")
		return
	}
	call, err := rt.Calls.Transition(ptr.Call, domain.CallActive)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("call", string(ptr.Call)).Msg("call_accepted rejected")
		return
	}
	if conn, ok := rt.Registry.Lookup(ptr.Peer); ok && conn.Ready() {
		rt.sendJSON(conn, protocol.CallAccepted{
			Type:   protocol.KindCallAccepted,
			From:   string(c.ID),
			To:     string(ptr.Peer),
			CallID: string(call.ID),
		})
	}
}

func (rt *Router) handleCallRejected(c *Client) {
	ptr, ok := rt.Calls.PointerFor(c.ID)
	if !ok {
		// Already removed (double reject, or the peer got there first).
		return
	}
	if _, ok := rt.Calls.Remove(ptr.Call); !ok {
		return
	}
	if conn, ok := rt.Registry.Lookup(ptr.Peer); ok && conn.Ready() {
		rt.sendJSON(conn, protocol.CallRejected{
			Type:   protocol.KindCallRejected,
			From:   string(c.ID),
			To:     string(ptr.Peer),
			CallID: string(ptr.Call),
		})
	}
}

func (rt *Router) handleCallEnd(c *Client, data core.Frame) {
	p, err := protocol.Decode[protocol.CallEnd](data)
	if err != nil {
		rt.logMalformed(c, protocol.KindCallEnd, err)
		return
	}
	ptr, ok := rt.Calls.PointerFor(c.ID)
	if !ok {
		return
	}
	call, ok := rt.Calls.Remove(ptr.Call)
	if !ok {
		return
	}

	duration := p.Duration
	if duration == 0 && call.Status == domain.CallActive {
		duration = int64(rt.Clock.Now().Sub(call.ActiveSince).Seconds())
	}
	log.Info().Str("module", "app.router").
		Str("call", string(call.ID)).
		Int64("duration", duration).
		Msg("call ended")

	if conn, ok := rt.Registry.Lookup(ptr.Peer); ok && conn.Ready() {
		rt.sendJSON(conn, protocol.CallEnd{
			Type:     protocol.KindCallEnd,
			From:     string(c.ID),
			To:       string(ptr.Peer),
			CallID:   string(call.ID),
			Duration: duration,
		})
	}
}

// OnDisconnect is the terminal path for a closing connection. It must run
// exactly once per connection; the transport adapter guarantees that. Any
// in-flight call is torn down and the peer notified.
func (rt *Router) OnDisconnect(c *Client) {
	if c.ID == "" {
		return
	}

	// A superseded handle's late disconnect must not touch the fresh
	// session's state: only the currently bound handle tears anything down.
	if !rt.Registry.UnregisterConn(c.ID, c.Conn) {
		return
	}

	if ptr, ok := rt.Calls.PointerFor(c.ID); ok {
		if call, ok := rt.Calls.Remove(ptr.Call); ok {
			var duration int64
			if call.Status == domain.CallActive {
				duration = int64(rt.Clock.Now().Sub(call.ActiveSince).Seconds())
			}
			log.Info().Str("module", "app.router").
				Str("call", string(call.ID)).
				Str("user", string(c.ID)).
				Int64("duration", duration).
				Msg("call ended by disconnect")
			if conn, ok := rt.Registry.Lookup(ptr.Peer); ok && conn.Ready() {
				rt.sendJSON(conn, protocol.CallEnd{
					Type:     protocol.KindCallEnd,
					From:     string(c.ID),
					To:       string(ptr.Peer),
					CallID:   string(call.ID),
					Duration: duration,
					Reason:   protocol.ReasonDisconnected,
				})
			}
		}
	}

	if rt.Limiter != nil {
		rt.Limiter.Forget(c.ID)
	}
	rt.Presence.Offline(c.ID)
}

func (rt *Router) sendJSON(conn core.PeerConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("sendJSON marshal")
		return
	}
	if err := conn.TrySend(core.Frame(b)); err != nil {
		log.Debug().Err(err).Str("module", "app.router").Msg("sendJSON dropped")
	}
}

// forwardRaw relays an envelope verbatim to target. Unreachable targets are
// silently skipped; there is no error envelope in this protocol.
func (rt *Router) forwardRaw(target domain.UserID, data core.Frame) {
	conn, ok := rt.Registry.Lookup(target)
	if !ok || !conn.Ready() {
		return
	}
	if err := conn.TrySend(data); err != nil {
		log.Debug().Err(err).Str("module", "app.router").Str("user", string(target)).Msg("forward dropped")
	}
}

func (rt *Router) logMalformed(c *Client, kind protocol.Kind, err error) {
	log.Warn().Err(err).Str("module", "app.router").
		Str("user", string(c.ID)).
		Str("kind", string(kind)).
		Msg("malformed envelope")
}

// touchLastActive refreshes the directory timestamp off the signaling path.
func (rt *Router) touchLastActive(id domain.UserID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
		defer cancel()
		if err := rt.Directory.TouchLastActive(ctx, id); err != nil {
			log.Warn().Err(err).Str("module", "app.router").Str("user", string(id)).Msg("touch last active failed")
		}
	}()
}
