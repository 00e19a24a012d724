// Package redis publishes category snapshots for downstream renderers:
// every effective registry change is pushed over PubSub and mirrored to a
// latest-snapshot key, so a dashboard can hydrate then stream.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"marketwatchv1/internal/watch"

	goredis "github.com/go-redis/redis/v8"
)

const defaultSnapshotTTL = 30 * time.Minute

// Config configures the publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes watch snapshots to Redis.
type Publisher struct {
	client *goredis.Client

	// OnPublish fires after each successful snapshot write.
	OnPublish func()
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// Run reads snapshots and publishes them. Blocks until ctx is cancelled
// or the channel is closed.
func (p *Publisher) Run(ctx context.Context, snapCh <-chan watch.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapCh:
			if !ok {
				return
			}
			p.publish(ctx, snap)
		}
	}
}

// publish performs a pipelined SET latest + PUBLISH for one snapshot.
func (p *Publisher) publish(ctx context.Context, snap watch.Snapshot) {
	data, err := json.Marshal(snap.Instruments)
	if err != nil {
		log.Printf("[redis] snapshot marshal error for %s: %v", snap.Category, err)
		return
	}
	payload := string(data)

	key := snap.Category.ExchangeKey()
	latestKey := "watch:snap:latest:" + key
	pubsubCh := "pub:watch:snap:" + key

	pipe := p.client.Pipeline()
	pipe.Set(ctx, latestKey, payload, defaultSnapshotTTL)
	pipe.Publish(ctx, pubsubCh, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] snapshot pipeline error for %s: %v", snap.Category, err)
		return
	}
	if p.OnPublish != nil {
		p.OnPublish()
	}
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
