package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/keremar/Amora/internal/core"
	"github.com/keremar/Amora/internal/domain"
)

// Registry maps a user identity to its single live connection. It is the
// source of truth for "is this user reachable right now". Last registration
// wins; the superseded handle is handed back so the caller can close it.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]core.PeerConnection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.UserID]core.PeerConnection)}
}

// Register binds id to conn, replacing any prior binding. The previous
// handle is returned if a different one was bound, nil otherwise.
func (r *Registry) Register(id domain.UserID, conn core.PeerConnection) core.PeerConnection {
	r.mu.Lock()
	prev := r.conns[id]
	r.conns[id] = conn
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("user", string(id)).Msg("registered session")
	if prev == conn {
		return nil
	}
	return prev
}

// Unregister removes the binding if present.
func (r *Registry) Unregister(id domain.UserID) bool {
	r.mu.Lock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if ok {
		log.Info().Str("module", "app.registry").Str("user", string(id)).Msg("unregistered session")
	}
	return ok
}

// UnregisterConn removes the binding only if conn is still the bound handle.
// A disconnect of a superseded connection must not evict its replacement.
func (r *Registry) UnregisterConn(id domain.UserID, conn core.PeerConnection) bool {
	r.mu.Lock()
	cur, ok := r.conns[id]
	if ok && cur == conn {
		delete(r.conns, id)
	} else {
		ok = false
	}
	r.mu.Unlock()
	if ok {
		log.Info().Str("module", "app.registry").Str("user", string(id)).Msg("unregistered session")
	}
	return ok
}

func (r *Registry) Lookup(id domain.UserID) (core.PeerConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// IsReachable reports whether id has a bound handle in a ready-to-send state.
func (r *Registry) IsReachable(id domain.UserID) bool {
	r.mu.RLock()
	conn, ok := r.conns[id]
	r.mu.RUnlock()
	return ok && conn.Ready()
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

type PeerSnap struct {
	ID   domain.UserID
	Conn core.PeerConnection
}

// Snapshot returns the current bindings for lock-free iteration by fanouts.
func (r *Registry) Snapshot() []PeerSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerSnap, 0, len(r.conns))
	for id, conn := range r.conns {
		out = append(out, PeerSnap{ID: id, Conn: conn})
	}
	return out
}
