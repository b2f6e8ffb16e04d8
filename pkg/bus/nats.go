package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// StreamName is the single JetStream stream backing all saga topics. One
// stream with per-topic subjects keeps retention and dedup policy uniform
// across the pipeline.
const StreamName = "SAGA_QUEUE"

// NATSBus is a Bus backed by NATS JetStream, giving durable,
// at-least-once delivery without a separate broker dependency.
type NATSBus struct {
	conn *nats.Conn
	js   jetstream.JetStream
	log  *slog.Logger
}

// NewNATSBus connects to url, ensures the backing stream exists, and returns
// a ready-to-use Bus.
func NewNATSBus(ctx context.Context, url string) (*NATSBus, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"q.>"},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to provision stream: %w", err)
	}

	return &NATSBus{conn: conn, js: js, log: slog.With("component", "bus")}, nil
}

// Publish implements Bus. Each call gets its own dedup ID: a saga is
// legitimately republished to the same topic more than once (self-correction
// re-enters q.initiated/q.generated with the same saga ID), and JetStream's
// msg-ID dedup window would otherwise drop the retry as a duplicate of the
// original, failed attempt.
func (b *NATSBus) Publish(ctx context.Context, topic string, msg Message) error {
	data := []byte(msg.SagaID)
	msgID := topic + ":" + msg.SagaID + ":" + uuid.NewString()
	if _, err := b.js.Publish(ctx, topic, data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe implements Bus. It creates a durable pull consumer named
// durableName on topic and processes messages one at a time until ctx is
// cancelled, matching the sequential-dispatch requirement of the tool loop
// consumers further downstream.
func (b *NATSBus) Subscribe(ctx context.Context, topic, durableName string, handler Handler) error {
	cons, err := b.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: topic,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxDeliver:    -1,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}

	log := b.log.With("topic", topic, "durable", durableName)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := cons.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			log.Warn("fetch failed, retrying", "error", err)
			continue
		}

		delivered := false
		for m := range msgs.Messages() {
			delivered = true
			envelope := Message{SagaID: string(m.Data()), Subject: m.Subject()}

			if err := handler(ctx, envelope); err != nil {
				log.Error("handler failed, message will be redelivered", "saga_id", envelope.SagaID, "error", err)
				_ = m.Nak()
				continue
			}
			_ = m.Ack()
		}
		if err := msgs.Error(); err != nil && !delivered {
			log.Warn("message iteration error", "error", err)
		}
	}
}

// JetStream exposes the underlying JetStream context so callers can open
// other JetStream-backed resources (e.g. a KV bucket) on the same connection.
func (b *NATSBus) JetStream() jetstream.JetStream {
	return b.js
}

// Close implements Bus.
func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}
