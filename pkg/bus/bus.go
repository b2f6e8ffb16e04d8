// Package bus provides the at-least-once, topic-based message bus used to
// move saga records between pipeline stages (spec §4.4).
package bus

import (
	"context"
	"errors"
)

// Standard topic names for the four-stage saga pipeline (spec §4.4, §6).
const (
	TopicInitiated = "q.initiated"
	TopicGenerated = "q.generated"
	TopicExecuted  = "q.executed"
	TopicTerminal  = "q.terminal"
)

var (
	// ErrBusUnavailable indicates the underlying transport could not be reached.
	ErrBusUnavailable = errors.New("message bus unavailable")

	// ErrPublishFailed indicates a publish was attempted but rejected by the broker.
	ErrPublishFailed = errors.New("message publish failed")
)

// Message is an envelope carrying a saga id plus whatever payload a stage needs
// to resume work; the payload itself lives in the state store, so the bus only
// ever needs to carry a key.
type Message struct {
	SagaID  string
	Subject string
}

// Handler processes one delivered message. Returning an error causes the
// message to be redelivered (Nak); returning nil acknowledges it.
type Handler func(ctx context.Context, msg Message) error

// Bus is the minimal surface the saga orchestrator needs: durable,
// at-least-once publish and a pull-style durable subscription per topic.
type Bus interface {
	// Publish durably enqueues msg on topic. It returns once the broker has
	// stored the message, not once a consumer has processed it.
	Publish(ctx context.Context, topic string, msg Message) error

	// Subscribe registers a durable consumer on topic and invokes handler for
	// each delivered message until ctx is cancelled. Subscribe blocks.
	Subscribe(ctx context.Context, topic, durableName string, handler Handler) error

	// Close releases any underlying connection.
	Close() error
}
