// Package nats publishes crawl results to a NATS JetStream subject.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Config holds the connection and publish settings.
type Config struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	Token         string        `mapstructure:"token"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// PublishMaxRetries bounds publish attempts after the first one.
	PublishMaxRetries int           `mapstructure:"publish_max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
}

// DefaultConfig returns usable defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		Name:              "docket-crawler",
		MaxReconnects:     10,
		ReconnectWait:     2 * time.Second,
		Timeout:           5 * time.Second,
		PublishMaxRetries: 3,
		RetryDelay:        time.Second,
	}
}

// JetStream is the subset of nats.JetStreamContext the publisher uses.
type JetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher sends JSON payloads with a de-duplication ID header.
type Publisher struct {
	js     JetStream
	cfg    Config
	logger *zap.Logger
}

// New wraps a JetStream context.
func New(js JetStream, cfg Config, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PublishMaxRetries < 0 {
		cfg.PublishMaxRetries = 0
	}
	return &Publisher{js: js, cfg: cfg, logger: logger}
}

// Publish marshals payload and publishes it on subject. The returned ID is
// "<stream>-<sequence>".
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) (string, error) {
	if p == nil || p.js == nil {
		return "", errors.New("nats publisher is not configured")
	}
	if subject == "" {
		return "", errors.New("nats subject is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	msg.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))

	var lastErr error
	for attempt := 0; attempt <= p.cfg.PublishMaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Warn("retrying nats publish",
				zap.String("subject", subject),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("publish cancelled: %w", ctx.Err())
			case <-time.After(p.cfg.RetryDelay):
			}
		}
		ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
		if err == nil {
			return fmt.Sprintf("%s-%d", ack.Stream, ack.Sequence), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("publish to %s: %w", subject, lastErr)
}

// Connect dials NATS with cfg, honoring ctx while the dial is pending.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	} else if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	type result struct {
		conn *nats.Conn
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(cfg.URL, opts...)
		resultCh <- result{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", res.err)
		}
		return res.conn, nil
	}
}

// Close drains conn, falling back to a hard close.
func Close(conn *nats.Conn) error {
	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("error draining connection: %w", err)
	}
	return nil
}
