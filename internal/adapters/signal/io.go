package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/keremar/Amora/internal/app"
	"github.com/keremar/Amora/internal/core"
)

const writeDeadline = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump drives the router. The deferred disconnect runs exactly once per
// connection, whatever caused the exit.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, client *app.Client, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("user", string(client.ID)).Msg("connection closing")
		ctl.Router.OnDisconnect(client)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("user", string(client.ID)).Msg("read error")
				return
			}
			ctl.Router.HandleFrame(client, core.Frame(data))
		}
	}
}
