// Package telemetry publishes session progress to an optional Redis
// side channel. It is adapted from the connected-service's Redis client
// (pkg/redis in the teacher repo), trimmed to the write-and-publish
// pattern a session actually needs: a progress hash field plus a
// pub/sub notification, nothing the session reads back.
package telemetry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher writes session progress to a Redis hash and publishes a
// notification alongside it, mirroring WriteAndPublishString in the
// connected-service's Redis client.
type Publisher struct {
	client *redis.Client
	ctx    context.Context
	key    string
}

// NewPublisher connects to addr and scopes all writes to key (e.g.
// "radiofile:session:<id>"). A nil *Publisher is valid and every method
// on it is a no-op, so callers can wire telemetry optionally.
func NewPublisher(addr, password string, db int, key string) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to redis: %w", err)
	}

	return &Publisher{client: client, ctx: ctx, key: key}, nil
}

// Progress reports completion of count out of total chunks for the
// current session phase (stop-and-wait chunk, or burst window).
func (p *Publisher) Progress(phase string, count, total int) error {
	if p == nil {
		return nil
	}
	value := fmt.Sprintf("%d/%d", count, total)

	pipe := p.client.Pipeline()
	pipe.HSet(p.ctx, p.key, phase, value)
	pipe.Publish(p.ctx, p.key, fmt.Sprintf("%s:%s", phase, value))
	_, err := pipe.Exec(p.ctx)
	return err
}

// Outcome reports the session's final boolean result.
func (p *Publisher) Outcome(success bool) error {
	if p == nil {
		return nil
	}
	value := "failed"
	if success {
		value = "done"
	}

	pipe := p.client.Pipeline()
	pipe.HSet(p.ctx, p.key, "outcome", value)
	pipe.Publish(p.ctx, p.key, "outcome:"+value)
	_, err := pipe.Exec(p.ctx)
	return err
}

// Close releases the underlying Redis connection. Safe on a nil
// Publisher.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
