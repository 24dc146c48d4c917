package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/miladsoleymani/dlqmux/core"
)

// message adapts an amqp.Delivery to core.Message. The routing key of a
// delivery is the queue name, so the message key travels in core.KeyHeader.
type message struct {
	topic    string
	delivery amqp.Delivery
}

func (m *message) Topic() string { return m.topic }
func (m *message) Value() []byte { return m.delivery.Body }

func (m *message) Key() []byte {
	switch k := m.delivery.Headers[core.KeyHeader].(type) {
	case string:
		return []byte(k)
	case []byte:
		return k
	}
	return nil
}

func (m *message) Headers() map[string]string {
	h := make(map[string]string, len(m.delivery.Headers))
	for k, v := range m.delivery.Headers {
		if k == core.KeyHeader {
			continue
		}
		if s, ok := v.(string); ok {
			h[k] = s
		} else {
			h[k] = fmt.Sprintf("%v", v)
		}
	}
	return h
}

// toPublishing builds a persistent publishing carrying msg.
func toPublishing(msg core.Message) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range msg.Headers() {
		headers[k] = v
	}
	if key := msg.Key(); len(key) > 0 {
		headers[core.KeyHeader] = string(key)
	}
	return amqp.Publishing{
		Headers:      headers,
		DeliveryMode: amqp.Persistent,
		Body:         msg.Value(),
	}
}
