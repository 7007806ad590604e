// Package directory implements the external user store the relay reports
// presence to. The production implementation is Redis-backed; Noop keeps the
// relay runnable without one.
package directory

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/keremar/Amora/internal/domain"
)

type Redis struct {
	client *goredis.Client
}

func NewRedis(addr, password string) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

func key(id domain.UserID) string { return "user:" + string(id) }

func (d *Redis) SetOnline(ctx context.Context, id domain.UserID) error {
	return d.client.HSet(ctx, key(id),
		"online", true,
		"last_active", time.Now().Unix(),
	).Err()
}

func (d *Redis) SetOffline(ctx context.Context, id domain.UserID) error {
	return d.client.HSet(ctx, key(id),
		"online", false,
		"last_seen", time.Now().Unix(),
	).Err()
}

func (d *Redis) TouchLastActive(ctx context.Context, id domain.UserID) error {
	return d.client.HSet(ctx, key(id), "last_active", time.Now().Unix()).Err()
}

func (d *Redis) Close() error { return d.client.Close() }

// Noop discards every update. Presence then exists only in relay memory.
type Noop struct{}

func (Noop) SetOnline(context.Context, domain.UserID) error       { return nil }
func (Noop) SetOffline(context.Context, domain.UserID) error      { return nil }
func (Noop) TouchLastActive(context.Context, domain.UserID) error { return nil }
