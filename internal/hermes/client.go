package hermes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"lifeguard/internal/events"
)

// Config holds the Hermes client configuration.
type Config struct {
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	MaxReconnects  int           `yaml:"max_reconnects"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:            "nats://localhost:4222",
		ConnectTimeout: 5 * time.Second,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1, // infinite
	}
}

// publisher is the slice of *nats.Conn the client needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// Client publishes lifecycle records to the Hermes NATS bus.
type Client struct {
	nc     *nats.Conn
	pub    publisher
	js     jetstream.JetStream
	source string
	logger *slog.Logger
}

// Connect creates a new Hermes client and connects to NATS.
func Connect(cfg Config, source string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name(source),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("hermes disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("hermes reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("hermes connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("hermes jetstream: %w", err)
	}

	return &Client{
		nc:     nc,
		pub:    nc,
		js:     js,
		source: source,
		logger: logger.With("component", "hermes"),
	}, nil
}

// Publish publishes an event to the given subject.
func (c *Client) Publish(subject string, event Event) error {
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return c.pub.Publish(subject, data)
}

// PublishRecord wraps a lifecycle record in an envelope and publishes it on
// the container's lifecycle subject.
func (c *Client) PublishRecord(rec events.Record) error {
	ev, err := NewEvent(string(rec.Kind), c.source, rec)
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}
	return c.Publish(LifecycleSubject(rec.ContainerID, rec.Kind), ev)
}

// Handler returns an emitter handler that forwards every record to NATS.
// Publish failures are logged and never block the lifecycle.
func (c *Client) Handler() func(events.Record) {
	return func(rec events.Record) {
		if err := c.PublishRecord(rec); err != nil {
			c.logger.Warn("failed to publish lifecycle event", "event", rec.Kind, "error", err)
		}
	}
}

// ProvisionStreams creates or updates all JetStream streams.
func (c *Client) ProvisionStreams(ctx context.Context) error {
	for _, cfg := range StreamConfigs {
		if _, err := c.js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("provision stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// Close drains and closes the NATS connection.
func (c *Client) Close() error {
	if c.nc != nil {
		return c.nc.Drain()
	}
	return nil
}
