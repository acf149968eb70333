// Package redisconn provides a shared Redis client factory.
package redisconn

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Open connects to Redis using a redis:// URL and verifies the connection.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
