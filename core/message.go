package core

import "context"

// KeyHeader carries the message key on brokers without a native key field
// (NATS subjects, AMQP routing keys).
const KeyHeader = "Dlqmux-Key"

// Message is the broker-agnostic message abstraction.
// Implementations are provided by broker plugins and are immutable once received.
type Message interface {
	Topic() string
	Key() []byte
	Value() []byte
	Headers() map[string]string
}

// ConsumeResult is the outcome of a single pull from a consumer handle.
// Exactly one of Message or EndOfPartition is set.
type ConsumeResult struct {
	Message        Message
	EndOfPartition bool
}

// Handler processes one message. A non-nil error (or a panic) marks the
// dispatch of that message as failed.
type Handler func(ctx context.Context, msg Message) error

// Middleware wraps a Handler to add cross-cutting behavior.
//
//	func MyMiddleware() dlqmux.Middleware {
//	    return func(next dlqmux.Handler) dlqmux.Handler {
//	        return func(ctx context.Context, msg dlqmux.Message) error {
//	            // before
//	            err := next(ctx, msg)
//	            // after
//	            return err
//	        }
//	    }
//	}
type Middleware func(Handler) Handler

// NewMessage builds a Message from its parts. Plugins return their own
// adapters; this is for producers and tests.
func NewMessage(topic string, key, value []byte, headers map[string]string) Message {
	return &basicMessage{topic: topic, key: key, value: value, headers: headers}
}

type basicMessage struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

func (m *basicMessage) Topic() string              { return m.topic }
func (m *basicMessage) Key() []byte                { return m.key }
func (m *basicMessage) Value() []byte              { return m.value }
func (m *basicMessage) Headers() map[string]string { return m.headers }
