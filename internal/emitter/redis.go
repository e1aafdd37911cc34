package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/e7canasta/orion-codescan/internal/scheduler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// publishTimeout bounds one publish so a slow broker only costs drops.
const publishTimeout = 2 * time.Second

// Publisher is the subset of *redis.Client the emitter uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisOptions configures NewRedisClient.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and pings it.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	slog.Info("emitter: redis connection established", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}

// RedisEmitter publishes JSON events on a pub/sub channel.
type RedisEmitter struct {
	pub      Publisher
	channel  string
	instance string

	published atomic.Uint64
	errors    atomic.Uint64
}

// NewRedisEmitter creates an emitter publishing on channel.
func NewRedisEmitter(pub Publisher, channel, instance string) *RedisEmitter {
	return &RedisEmitter{pub: pub, channel: channel, instance: instance}
}

// Publish marshals and publishes one event.
func (e *RedisEmitter) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		e.errors.Add(1)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := e.pub.Publish(ctx, e.channel, payload).Err(); err != nil {
		e.errors.Add(1)
		return fmt.Errorf("publish failed: %w", err)
	}

	e.published.Add(1)
	slog.Debug("emitter: event published", "channel", e.channel, "type", ev.Type, "size", len(payload))
	return nil
}

// OnPreview implements scheduler.Sink. Previews are not published.
func (e *RedisEmitter) OnPreview(scheduler.Preview) {}

// OnResult implements scheduler.Sink.
func (e *RedisEmitter) OnResult(r scheduler.Result) {
	if err := e.Publish(context.Background(), FromResult(e.instance, r)); err != nil {
		slog.Warn("emitter: redis result dropped", "seq", r.Seq, "error", err)
	}
}

// OnError implements scheduler.Sink.
func (e *RedisEmitter) OnError(er scheduler.ErrorReport) {
	if err := e.Publish(context.Background(), FromError(e.instance, er)); err != nil {
		slog.Warn("emitter: redis error report dropped", "title", er.Title, "error", err)
	}
}

// Stats returns published and failed counts.
func (e *RedisEmitter) Stats() (published, failed uint64) {
	return e.published.Load(), e.errors.Load()
}

// Close closes the publisher if it owns a connection.
func (e *RedisEmitter) Close() error {
	if c, ok := e.pub.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
