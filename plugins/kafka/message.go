package kafka

import (
	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/dlqmux/core"
)

// message adapts a kafka.Message to core.Message.
// The raw record is kept for offset commits.
type message struct {
	raw kafka.Message
}

func (m *message) Topic() string  { return m.raw.Topic }
func (m *message) Key() []byte    { return m.raw.Key }
func (m *message) Value() []byte  { return m.raw.Value }
func (m *message) Partition() int { return m.raw.Partition }
func (m *message) Offset() int64  { return m.raw.Offset }

func (m *message) Headers() map[string]string {
	h := make(map[string]string, len(m.raw.Headers))
	for _, kh := range m.raw.Headers {
		h[kh.Key] = string(kh.Value)
	}
	return h
}

// toKafka builds the record produced for msg on topic.
func toKafka(topic string, msg core.Message) kafka.Message {
	return kafka.Message{
		Topic:   topic,
		Key:     msg.Key(),
		Value:   msg.Value(),
		Headers: toHeaders(msg.Headers()),
	}
}

// toHeaders converts a string map to Kafka headers.
func toHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	headers := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}
