package distributor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/you-humble/pdftoxml/internal/converter"
	"github.com/you-humble/pdftoxml/internal/domain"

	"github.com/nats-io/nats.go"
)

type Processor interface {
	Process(ctx context.Context, conversionID string) error
}

type NATSConfig struct {
	Stream   string
	Subject  string
	Consumer string
	Workers  int
	// FetchWait bounds a single pull request.
	FetchWait time.Duration
}

type natsDistributor struct {
	js        nats.JetStreamContext
	cfg       NATSConfig
	processor Processor

	sub *nats.Subscription
	wg  sync.WaitGroup
}

func NewNATS(js nats.JetStreamContext, cfg NATSConfig, processor Processor) *natsDistributor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = 5 * time.Second
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "pdftoxml-conversion-consumer"
	}

	return &natsDistributor{
		js:        js,
		cfg:       cfg,
		processor: processor,
	}
}

// Run creates the durable consumer and starts the fetch loops. It returns
// once the workers are running.
func (d *natsDistributor) Run(ctx context.Context) error {
	_, err := d.js.AddConsumer(d.cfg.Stream, &nats.ConsumerConfig{
		Durable:       d.cfg.Consumer,
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: d.cfg.Subject,
		MaxAckPending: d.cfg.Workers * 2,
		MaxDeliver:    5,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return fmt.Errorf("JetStream AddConsumer: %w", err)
	}

	sub, err := d.js.PullSubscribe(d.cfg.Subject, d.cfg.Consumer, nats.Bind(d.cfg.Stream, d.cfg.Consumer))
	if err != nil {
		return fmt.Errorf("JetStream PullSubscribe: %w", err)
	}
	d.sub = sub

	d.wg.Add(d.cfg.Workers)
	for i := range d.cfg.Workers {
		go func() {
			defer d.wg.Done()
			d.runWorker(ctx, i)
		}()
	}

	slog.Info("NATS distributor is running",
		slog.Int("workers", d.cfg.Workers),
		slog.String("subject", d.cfg.Subject),
	)
	return nil
}

// Stop waits for the workers to leave after ctx passed to Run is done.
func (d *natsDistributor) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	if d.sub != nil {
		if err := d.sub.Drain(); err != nil {
			slog.Warn("NATS subscription drain", slog.String("error", err.Error()))
		}
	}

	slog.Info("NATS distributor stopped")
	return nil
}

func (d *natsDistributor) runWorker(ctx context.Context, workerID int) {
	l := slog.With(slog.Int("worker_id", workerID))

	for {
		if ctx.Err() != nil {
			l.Debug("worker stopping")
			return
		}

		msgs, err := d.sub.Fetch(1, nats.MaxWait(d.cfg.FetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrSubscriptionClosed) {
				return
			}
			l.Warn("NATS Fetch", slog.String("error", err.Error()))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			d.handle(ctx, l, msg)
		}
	}
}

func (d *natsDistributor) handle(ctx context.Context, l *slog.Logger, msg *nats.Msg) {
	id := string(msg.Data)
	l = l.With(slog.String("job_id", id))

	// an accepted message is finished even when shutdown starts mid-run
	err := d.processor.Process(context.WithoutCancel(ctx), id)
	if err != nil && retryable(err) {
		l.Warn("process, redelivering", slog.String("error", err.Error()))
		if err := msg.NakWithDelay(time.Second); err != nil {
			l.Warn("NATS Nak", slog.String("error", err.Error()))
		}
		return
	}
	if err != nil {
		l.Error("process", slog.String("error", err.Error()))
	}

	if err := msg.Ack(); err != nil {
		l.Warn("NATS Ack", slog.String("error", err.Error()))
	}
}

// retryable reports whether the run never reached the pipeline, so the job
// is still PENDING and a redelivery can pick it up.
func retryable(err error) bool {
	var cerr *converter.Error
	switch {
	case errors.As(err, &cerr),
		errors.Is(err, domain.ErrConversionNotFound),
		errors.Is(err, domain.ErrConversionNotPending):
		return false
	}
	return true
}
