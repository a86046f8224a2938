package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Options mirrors the connection settings in config.RedisConfig.
type Options struct {
	URL      string
	Addr     string
	Password string
	DB       int
}

// Connect builds a client, preferring URL when set, and pings it.
func Connect(ctx context.Context, o Options) (*goredis.Client, error) {
	var client *goredis.Client
	if o.URL != "" {
		opts, err := goredis.ParseURL(o.URL)
		if err != nil {
			return nil, fmt.Errorf("redis parse url: %w", err)
		}
		client = goredis.NewClient(opts)
	} else {
		client = goredis.NewClient(&goredis.Options{
			Addr:     o.Addr,
			Password: o.Password,
			DB:       o.DB,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
