package alert

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"threatScope/internal/metrics"
	"threatScope/internal/model"
)

// Dispatcher fans an alert out to every configured channel.
type Dispatcher struct {
	channels []Channel
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewDispatcher(channels []Channel, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{channels: channels, metrics: m, logger: logger}
}

func (d *Dispatcher) Channels() []Channel {
	return d.channels
}

// Dispatch attempts every channel concurrently and returns the number of
// successful deliveries. Channel failures are logged and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, alert model.ThreatAlert) int {
	var delivered atomic.Int64
	var g errgroup.Group
	for _, ch := range d.channels {
		ch := ch
		g.Go(func() error {
			copied := alert
			err := ch.Send(ctx, &copied)
			d.metrics.ObserveDelivery(ch.Name(), err)
			if err != nil {
				d.logger.Warn("alert delivery failed",
					zap.String("channel", ch.Name()),
					zap.String("id", alert.ID),
					zap.Error(err),
				)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(delivered.Load())
}
