package signal

import (
	"errors"
	"testing"

	"github.com/keremar/Amora/internal/core"
)

func TestWsConn_TrySendDistinguishesClosedFromFull(t *testing.T) {
	c := &WsConn{send: make(chan core.Frame, 1)}

	if err := c.TrySend(core.Frame(`{"type":"pong"}`)); err != nil {
		t.Fatalf("send into empty buffer: %v", err)
	}
	if err := c.TrySend(core.Frame(`{"type":"pong"}`)); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("full buffer: err = %v, want ErrBackpressure", err)
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if err := c.TrySend(core.Frame(`{"type":"pong"}`)); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("closed connection: err = %v, want ErrConnClosed", err)
	}
	if c.Ready() {
		t.Fatalf("closed connection reported ready")
	}
}
