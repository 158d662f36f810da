package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"threatScope/internal/model"
)

// NATSConfig configures the NATS publisher connection.
type NATSConfig struct {
	URL            string
	Subject        string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// NATSPublisher forwards events to a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

func NewNATSPublisher(cfg NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 10
	}

	opts := []nats.Option{
		nats.Name("threatScope"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info("nats connected", zap.String("url", conn.ConnectedUrl()), zap.String("subject", cfg.Subject))

	return &NATSPublisher{conn: conn, subject: cfg.Subject, logger: logger}, nil
}

func (p *NATSPublisher) Name() string {
	return "nats"
}

func (p *NATSPublisher) Handle(_ context.Context, event model.ThreatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal threat event: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("Nats-Msg-Id", event.Alert.ID)
	msg.Header.Set("Threat-Severity", string(event.Alert.Severity))
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish nats: %w", err)
	}
	return nil
}

// Close flushes pending messages before closing the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
