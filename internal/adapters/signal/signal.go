package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/keremar/Amora/internal/app"
	"github.com/keremar/Amora/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Controller upgrades HTTP requests to WebSocket connections and feeds their
// frames into the signaling router.
type Controller struct {
	Router    *app.Router
	ReadLimit int64
}

func NewController(router *app.Router, readLimit int64) *Controller {
	return &Controller{Router: router, ReadLimit: readLimit}
}

// WsConn adapts *websocket.Conn to core.PeerConnection. Writes go through a
// buffered channel drained by the write pump; a full buffer fails fast with
// ErrBackpressure instead of stalling the router.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *WsConn) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal owns the connection lifecycle: upgrade, pumps, and the
// exactly-once disconnect path when the read pump exits.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, 64),
	}
	client := &app.Client{Conn: conn}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, client, conn)
}
