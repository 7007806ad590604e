package core

import (
	"context"
	"time"

	"github.com/keremar/Amora/internal/domain"
)

// Frame is a raw signaling payload as read from or written to a transport.
type Frame []byte

// PeerConnection abstracts the live transport endpoint of one client.
// Owned by the adapter; the adapter must Close() it.
type PeerConnection interface {
	// TrySend queues a frame without blocking. It fails when the peer's
	// send buffer is full or the connection is closed.
	TrySend(Frame) error
	// Ready reports whether the transport is in a ready-to-send state.
	Ready() bool
	Close()
}

// Directory is the external user store the relay reports presence to.
// Every call is best-effort: failures are logged by the caller and must
// never reach the signaling path.
type Directory interface {
	SetOnline(ctx context.Context, id domain.UserID) error
	SetOffline(ctx context.Context, id domain.UserID) error
	TouchLastActive(ctx context.Context, id domain.UserID) error
}

// Clock abstracts time so tests can control it.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
