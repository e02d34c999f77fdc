// Package notify publishes applied policy changes to NATS so downstream
// consumers (ticketing, chat bridges, audit sinks) can react without tailing
// report files.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/synaccel/sentinel/internal/core"
)

// Publisher sends each policy change as a JSON message to a NATS subject.
// It implements core.Notifier.
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewPublisher connects to NATS and returns a Publisher. A nil Publisher is
// returned without error when no URL is configured; callers treat that as
// notifications disabled.
func NewPublisher(cfg core.NotifyConfig, logger zerolog.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = "sentinel.policy.changes"
	}

	p := &Publisher{
		nc:      nc,
		subject: subject,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
	p.logger.Info().Str("url", cfg.URL).Str("subject", subject).Msg("connected to NATS")
	return p, nil
}

// PublishChanges sends one message per change. The first publish or flush
// error aborts the batch; the caller treats notification failure as
// non-fatal.
func (p *Publisher) PublishChanges(ctx context.Context, changes []core.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, change := range changes {
		data, err := json.Marshal(change)
		if err != nil {
			return fmt.Errorf("marshaling change %s: %w", change.ID, err)
		}
		if err := p.nc.Publish(p.subject, data); err != nil {
			return fmt.Errorf("publishing change %s: %w", change.ID, err)
		}
		p.logger.Debug().
			Str("change_id", change.ID).
			Str("category", change.Category).
			Str("flag", change.Flag).
			Msg("change published")
	}

	deadline := 5 * time.Second
	if d, ok := ctx.Deadline(); ok {
		// FlushTimeout rejects non-positive durations with its own error;
		// an expired context must surface as deadline exceeded instead.
		if deadline = time.Until(d); deadline <= 0 {
			return context.DeadlineExceeded
		}
	}
	if err := p.nc.FlushTimeout(deadline); err != nil {
		return fmt.Errorf("flushing NATS connection: %w", err)
	}
	return nil
}

// Close drains the connection so buffered messages are delivered.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
