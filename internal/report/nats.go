package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/ahrdadan/pagecheck/internal/config"
)

const natsConnectTimeout = 5 * time.Second

// streamPublisher is the part of jetstream.JetStream the publisher uses.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSPublisher publishes run events as JSON to JetStream on
// <subject>.<run_id>.
type NATSPublisher struct {
	nc      *nats.Conn
	js      streamPublisher
	subject string
	logger  *zap.Logger
}

// NewNATSPublisher connects to cfg.URL and creates or updates the stream
// that captures <subject>.>.
func NewNATSPublisher(ctx context.Context, cfg config.NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(config.AppName),
		nats.Timeout(natsConnectTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := EnsureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("publishing run events to NATS",
		zap.String("url", cfg.URL),
		zap.String("stream", cfg.Stream),
		zap.String("subject", cfg.Subject),
	)

	return &NATSPublisher{
		nc:      nc,
		js:      js,
		subject: cfg.Subject,
		logger:  logger,
	}, nil
}

// EnsureStream creates or updates the stream that captures <subject>.>.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg config.NATSConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "pagecheck run events",
		Subjects:    []string{cfg.Subject + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// SubjectFor returns the subject events of runID are published on.
func SubjectFor(subject, runID string) string {
	return subject + "." + runID
}

// Publish implements Publisher. The event ID doubles as the JetStream
// message ID, so a retried publish is deduplicated.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if _, err := p.js.Publish(ctx, SubjectFor(p.subject, event.RunID), data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("failed to drain NATS connection", zap.Error(err))
		p.nc.Close()
	}
}
