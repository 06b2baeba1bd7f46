package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/domain"
)

var (
	ErrQueueFull       = errors.New("event queue full")
	ErrPublisherClosed = errors.New("event publisher closed")
)

// AsyncPublisher hands committed events to a background goroutine that
// delivers them to Next, so slow sinks do not hold up the caller. Events
// queued before Close are still delivered.
type AsyncPublisher struct {
	Next Publisher
	// DeliveryTimeout bounds one delivery to Next.
	DeliveryTimeout time.Duration

	logger *zap.Logger
	queue  chan []domain.Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsyncPublisher(next Publisher, size int, logger *zap.Logger) *AsyncPublisher {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &AsyncPublisher{
		Next:            next,
		DeliveryTimeout: 30 * time.Second,
		logger:          logger,
		queue:           make(chan []domain.Event, size),
		done:            make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues evts without waiting for delivery.
func (p *AsyncPublisher) Publish(_ context.Context, evts ...domain.Event) error {
	if len(evts) == 0 {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	batch := append([]domain.Event(nil), evts...)
	select {
	case p.queue <- batch:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for batch := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.DeliveryTimeout)
		if err := p.Next.Publish(ctx, batch...); err != nil {
			p.logger.Warn("deliver events failed", zap.Int("count", len(batch)), zap.String("first_type", batch[0].Type), zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queue to drain.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
	return nil
}
