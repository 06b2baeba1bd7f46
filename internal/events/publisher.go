package events

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"orderflow/internal/domain"
)

// Publisher forwards committed events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, evts ...domain.Event) error
}

// NopPublisher drops events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...domain.Event) error { return nil }

// RedisPublisher appends events to a Redis stream.
type RedisPublisher struct {
	Client *redis.Client
	Stream string
	// MaxLen caps the stream length approximately; zero keeps everything.
	MaxLen int64
}

func NewRedisPublisher(client *redis.Client, stream string) *RedisPublisher {
	if stream == "" {
		stream = "orderflow:events"
	}
	return &RedisPublisher{Client: client, Stream: stream, MaxLen: 100000}
}

func (p *RedisPublisher) Publish(ctx context.Context, evts ...domain.Event) error {
	if len(evts) == 0 {
		return nil
	}
	pipe := p.Client.Pipeline()
	for _, e := range evts {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.Stream,
			MaxLen: p.MaxLen,
			Approx: p.MaxLen > 0,
			Values: map[string]any{
				"id":          e.ID,
				"ts":          e.TS,
				"type":        e.Type,
				"entity_kind": e.EntityKind,
				"entity_id":   e.EntityID,
				"actor_id":    e.ActorID,
				"payload":     e.Payload,
			},
		})
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []domain.Event
}

func (r *Recorder) Publish(_ context.Context, evts ...domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, evts...)
	return nil
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}
