package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"threatScope/internal/metrics"
	"threatScope/internal/model"
)

const defaultQueueSize = 256

// Subscriber consumes threat_detected events on its own goroutine.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, event model.ThreatEvent) error
	Close() error
}

// SubscribeOptions controls the queue between the bus and a subscriber.
type SubscribeOptions struct {
	QueueSize int
	// DropOnFull discards events instead of blocking the publisher.
	DropOnFull bool
}

type subscription struct {
	sub        Subscriber
	queue      chan model.ThreatEvent
	dropOnFull bool
}

// Bus delivers each published alert to every subscriber through a bounded queue.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	closed bool
	wg     sync.WaitGroup

	ctx     context.Context
	cancel  context.CancelFunc
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewBus(m *metrics.Metrics, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{ctx: ctx, cancel: cancel, metrics: m, logger: logger}
}

// Subscribe registers sub and starts its consumer.
func (b *Bus) Subscribe(sub Subscriber, opts SubscribeOptions) error {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("event bus closed")
	}

	s := &subscription{
		sub:        sub,
		queue:      make(chan model.ThreatEvent, opts.QueueSize),
		dropOnFull: opts.DropOnFull,
	}
	b.subs = append(b.subs, s)
	b.wg.Add(1)
	go b.consume(s)
	return nil
}

// Publish emits one threat_detected event for alert.
func (b *Bus) Publish(ctx context.Context, alert model.ThreatAlert) {
	event := model.NewThreatEvent(alert)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, s := range b.subs {
		if s.dropOnFull {
			select {
			case s.queue <- event:
			default:
				b.metrics.ObserveDroppedEvent(s.sub.Name())
				b.logger.Warn("event dropped", zap.String("subscriber", s.sub.Name()), zap.String("id", alert.ID))
			}
			continue
		}

		select {
		case s.queue <- event:
		case <-ctx.Done():
			b.metrics.ObserveDroppedEvent(s.sub.Name())
			return
		}
	}
}

func (b *Bus) consume(s *subscription) {
	defer b.wg.Done()
	for event := range s.queue {
		if err := s.sub.Handle(b.ctx, event); err != nil {
			b.logger.Warn("event subscriber failed",
				zap.String("subscriber", s.sub.Name()),
				zap.String("id", event.Alert.ID),
				zap.Error(err),
			)
		}
	}
}

// Close drains queued events, then closes every subscriber.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.queue)
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.cancel()

	var errs []error
	for _, s := range b.subs {
		if err := s.sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
