package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/keremar/Amora/internal/core"
	"github.com/keremar/Amora/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errFakeBackpressure = errors.New("backpressure")

// fakeConn records everything sent to it.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	ready  bool
	closed bool
	full   bool
}

func newFakeConn() *fakeConn { return &fakeConn{ready: true} }

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return errFakeBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready && !c.closed
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.ready = false
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// received decodes every frame sent so far into generic maps.
func (c *fakeConn) received(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("undecodable frame %q: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

// ofType filters received envelopes by their type field.
func (c *fakeConn) ofType(t *testing.T, kind string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range c.received(t) {
		if m["type"] == kind {
			out = append(out, m)
		}
	}
	return out
}

type fakeDirectory struct {
	mu      sync.Mutex
	online  []domain.UserID
	offline []domain.UserID
	touched []domain.UserID
	notify  chan string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{notify: make(chan string, 32)}
}

func (d *fakeDirectory) SetOnline(_ context.Context, id domain.UserID) error {
	d.mu.Lock()
	d.online = append(d.online, id)
	d.mu.Unlock()
	d.notify <- "online"
	return nil
}

func (d *fakeDirectory) SetOffline(_ context.Context, id domain.UserID) error {
	d.mu.Lock()
	d.offline = append(d.offline, id)
	d.mu.Unlock()
	d.notify <- "offline"
	return nil
}

func (d *fakeDirectory) TouchLastActive(_ context.Context, id domain.UserID) error {
	d.mu.Lock()
	d.touched = append(d.touched, id)
	d.mu.Unlock()
	d.notify <- "touch"
	return nil
}

// await blocks until the directory saw the given operation; directory writes
// are fire-and-forget, so tests must synchronize on them explicitly.
func (d *fakeDirectory) await(t *testing.T, op string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-d.notify:
			if got == op {
				return
			}
		case <-deadline:
			t.Fatalf("directory never saw %q", op)
		}
	}
}

func newTestRouter() (*Router, *fakeClock, *fakeDirectory) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	dir := newFakeDirectory()
	registry := NewRegistry()
	rt := &Router{
		Registry:  registry,
		Calls:     NewCallTable(clock),
		Presence:  &Presence{Registry: registry, Directory: dir, Clock: clock},
		Directory: dir,
		Clock:     clock,
	}
	return rt, clock, dir
}

// register connects a fake peer and binds it to id through the router.
func register(t *testing.T, rt *Router, id string) (*Client, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	client := &Client{Conn: conn}
	rt.HandleFrame(client, frame(t, map[string]any{"type": "register", "userId": id}))
	if client.ID != domain.UserID(id) {
		t.Fatalf("register did not bind identity, got %q", client.ID)
	}
	return client, conn
}

func frame(t *testing.T, v any) core.Frame {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal test frame: %v", err)
	}
	return core.Frame(b)
}
