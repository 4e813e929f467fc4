package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects published by the backend. Downstream consumers (notifications,
// analytics) subscribe to these.
const (
	SubjectGenerationCompleted = "generation.completed"
	SubjectGenerationFailed    = "generation.failed"
	SubjectCreditRefunded      = "credit.refunded"
	SubjectPaymentSettled      = "payment.settled"
)

// Config represents NATS publisher configuration.
type Config struct {
	Enabled       bool          `yaml:"enabled"`
	Address       string        `yaml:"address"`
	ReconnectWait time.Duration `yaml:"reconnect_wait_seconds"`
	MaxReconnects int           `yaml:"max_reconnects"`
}

// GenerationEvent is emitted when a generation job reaches a terminal state.
type GenerationEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	AccountID uuid.UUID `json:"account_id"`
	Model     string    `json:"model"`
	Cost      int       `json:"cost"`
	ImageURL  string    `json:"image_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RefundEvent is emitted when a failed charge is re-credited.
type RefundEvent struct {
	AccountID uuid.UUID `json:"account_id"`
	Credits   int       `json:"credits"`
	Reference string    `json:"reference"`
	Timestamp time.Time `json:"timestamp"`
}

// SettlementEvent is emitted when a payment capture is credited.
type SettlementEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	AccountID     uuid.UUID `json:"account_id"`
	Provider      string    `json:"provider"`
	Credits       int       `json:"credits"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher publishes backend events to NATS. A nil Publisher is a no-op, so
// callers never need to guard for messaging being disabled.
type Publisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// Connect establishes the NATS connection and returns a Publisher. Returns
// (nil, nil) when messaging is disabled.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		logger.Info("Event publishing disabled")
		return nil, nil
	}

	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 60
	}

	opts := []nats.Option{
		nats.Name("deepshark-backend"),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return &Publisher{nc: nc, logger: logger.Named("events")}, nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("Failed to drain NATS connection", zap.Error(err))
		p.nc.Close()
	}
}

// Publish serializes the event as JSON and publishes it. Publishing is
// best-effort: a failure is logged, never propagated, because events must not
// affect request outcomes.
func (p *Publisher) Publish(subject string, event interface{}) {
	if p == nil || p.nc == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}

	if err := p.nc.Publish(subject, payload); err != nil {
		p.logger.Warn("Failed to publish event", zap.String("subject", subject), zap.Error(err))
		return
	}

	p.logger.Debug("Event published", zap.String("subject", subject))
}
