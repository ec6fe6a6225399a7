// Package watch follows run events published to JetStream by other
// pagecheck processes.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/ahrdadan/pagecheck/internal/config"
	"github.com/ahrdadan/pagecheck/internal/report"
)

const (
	// DefaultConsumer is the durable consumer name used when none is given.
	DefaultConsumer = "pagecheck-watch"

	fetchBatch   = 10
	fetchMaxWait = 5 * time.Second
)

// Options selects which events a Watcher receives.
type Options struct {
	// Consumer is the durable consumer name. A durable consumer resumes
	// where it stopped.
	Consumer string
	// RunID restricts events to one run. Empty follows every run.
	RunID string
	// NewOnly skips events already in the stream.
	NewOnly bool
	// UntilFinished stops after the run_finished event of RunID.
	UntilFinished bool
}

// Handler receives every event in stream order. An error asks for the
// message to be redelivered.
type Handler func(report.Event) error

// message is the part of jetstream.Msg the watcher uses.
type message interface {
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

// Watcher consumes run events from the stream.
type Watcher struct {
	nc       *nats.Conn
	consumer jetstream.Consumer
	opts     Options
	logger   *zap.Logger
}

// New connects to cfg.URL, ensures the stream exists and creates or updates
// the durable consumer.
func New(ctx context.Context, cfg config.NATSConfig, opts Options, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Consumer == "" {
		opts.Consumer = DefaultConsumer
	}

	nc, err := nats.Connect(cfg.URL, nats.Name(config.AppName+"-watch"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := report.EnsureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, err
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	consumer, err := js.CreateOrUpdateConsumer(setupCtx, cfg.Stream, ConsumerConfig(cfg.Subject, opts))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	logger.Info("watching run events",
		zap.String("stream", cfg.Stream),
		zap.String("consumer", opts.Consumer),
		zap.String("run_id", opts.RunID),
	)

	return &Watcher{
		nc:       nc,
		consumer: consumer,
		opts:     opts,
		logger:   logger,
	}, nil
}

// ConsumerConfig builds the durable consumer for subject and opts.
func ConsumerConfig(subject string, opts Options) jetstream.ConsumerConfig {
	filter := subject + ".>"
	if opts.RunID != "" {
		filter = report.SubjectFor(subject, opts.RunID)
	}

	deliver := jetstream.DeliverAllPolicy
	if opts.NewOnly {
		deliver = jetstream.DeliverNewPolicy
	}

	return jetstream.ConsumerConfig{
		Name:          opts.Consumer,
		Durable:       opts.Consumer,
		FilterSubject: filter,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: deliver,
		MaxDeliver:    3,
		AckWait:       30 * time.Second,
	}
}

// Run fetches events and hands them to handle until ctx is done or, with
// UntilFinished, the run ends.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	for ctx.Err() == nil {
		batch, err := w.consumer.Fetch(fetchBatch, jetstream.FetchMaxWait(fetchMaxWait))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Warn("failed to fetch run events", zap.Error(err))
			continue
		}

		for msg := range batch.Messages() {
			if w.process(msg, handle) {
				return nil
			}
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
			w.logger.Debug("fetch ended early", zap.Error(err))
		}
	}
	return nil
}

// process handles one message and reports whether watching is done.
func (w *Watcher) process(msg message, handle Handler) bool {
	var event report.Event
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		w.logger.Warn("dropping malformed run event", zap.Error(err))
		_ = msg.Term()
		return false
	}

	if err := handle(event); err != nil {
		w.logger.Warn("run event handler failed",
			zap.String("run_id", event.RunID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		_ = msg.Nak()
		return false
	}

	if err := msg.Ack(); err != nil {
		w.logger.Warn("failed to ack run event", zap.Error(err))
	}
	return w.opts.UntilFinished && event.RunID == w.opts.RunID && event.IsTerminal()
}

// Close closes the connection.
func (w *Watcher) Close() {
	if w.nc != nil {
		w.nc.Close()
	}
}
