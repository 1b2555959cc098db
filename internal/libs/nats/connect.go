package natsq

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

type Config struct {
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// NewConnect dials url and logs connection state changes.
func NewConnect(url string, cfg Config) (*nats.Conn, error) {
	if url == "" {
		return nil, errors.New("nats: empty url")
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Info("NATS connection closed")
		}),
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

// NewJetStream returns a JetStream context bound to a stream built from cfg.
// An existing stream is updated so subject or retention changes apply on restart.
func NewJetStream(nc *nats.Conn, cfg *nats.StreamConfig) (nats.JetStreamContext, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("JetStream: %w", err)
	}

	if _, err := js.StreamInfo(cfg.Name); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("JetStream StreamInfo %s: %w", cfg.Name, err)
		}
		if _, err := js.AddStream(cfg); err != nil {
			return nil, fmt.Errorf("JetStream AddStream %s: %w", cfg.Name, err)
		}
		return js, nil
	}

	if _, err := js.UpdateStream(cfg); err != nil {
		return nil, fmt.Errorf("JetStream UpdateStream %s: %w", cfg.Name, err)
	}
	return js, nil
}
