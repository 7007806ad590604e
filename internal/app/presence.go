package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keremar/Amora/internal/core"
	"github.com/keremar/Amora/internal/domain"
	"github.com/keremar/Amora/internal/protocol"
)

const directoryTimeout = 3 * time.Second

// Presence announces online/offline transitions to every other connected
// session and persists the flag through the external user directory.
// Delivery and persistence are both best-effort.
type Presence struct {
	Registry  *Registry
	Directory core.Directory
	Clock     core.Clock
}

func (p *Presence) Online(id domain.UserID) {
	p.announce(id, true)
	p.persist(id, true)
}

func (p *Presence) Offline(id domain.UserID) {
	p.announce(id, false)
	p.persist(id, false)
}

func (p *Presence) announce(id domain.UserID, online bool) {
	frame, err := json.Marshal(protocol.UserStatus{
		Type:   protocol.KindUserStatus,
		UserID: string(id),
		Online: online,
		TS:     p.Clock.Now().Unix(),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("marshal user_status")
		return
	}

	sent, dropped := 0, 0
	for _, snap := range p.Registry.Snapshot() {
		if snap.ID == id || !snap.Conn.Ready() {
			continue
		}
		if err := snap.Conn.TrySend(core.Frame(frame)); err != nil {
			dropped++
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.presence").
		Str("user", string(id)).
		Bool("online", online).
		Int("sent_to", sent).
		Int("dropped", dropped).
		Msg("presence broadcast")
}

// persist writes the flag off the signaling path. Failures are logged and
// never retried; the directory is best-effort, not authoritative.
func (p *Presence) persist(id domain.UserID, online bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
		defer cancel()
		var err error
		if online {
			err = p.Directory.SetOnline(ctx, id)
		} else {
			err = p.Directory.SetOffline(ctx, id)
		}
		if err != nil {
			log.Warn().Err(err).Str("module", "app.presence").Str("user", string(id)).Msg("directory update failed")
		}
	}()
}
