package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

const HeaderConversionID = "Conversion-Id"

type queue struct {
	js      nats.JetStreamContext
	subject string
}

func New(js nats.JetStreamContext, subject string) *queue {
	return &queue{
		js:      js,
		subject: subject,
	}
}

// Enqueue publishes the conversion id. The id doubles as the JetStream
// message id so a repeated publish inside the dedup window is dropped.
func (q *queue) Enqueue(ctx context.Context, conversionID string) error {
	if conversionID == "" {
		return fmt.Errorf("empty conversionID")
	}

	msg := &nats.Msg{
		Subject: q.subject,
		Data:    []byte(conversionID),
		Header:  nats.Header{},
	}
	msg.Header.Set(HeaderConversionID, conversionID)

	ack, err := q.js.PublishMsg(msg, nats.Context(ctx), nats.MsgId(conversionID))
	if err != nil {
		return fmt.Errorf("enqueue conversion %s: publish failed: %w", conversionID, err)
	}

	slog.Debug(
		"conversion enqueued",
		slog.String("job_id", conversionID),
		slog.String("subject", q.subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
		slog.Bool("duplicate", ack.Duplicate),
	)

	return nil
}
