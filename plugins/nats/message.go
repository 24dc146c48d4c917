package nats

import (
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/miladsoleymani/dlqmux/core"
)

// message adapts a JetStream message to core.Message.
// The key travels in the core.KeyHeader header.
type message struct {
	msg jetstream.Msg
}

func (m *message) Topic() string { return m.msg.Subject() }
func (m *message) Value() []byte { return m.msg.Data() }

func (m *message) Key() []byte {
	if k := m.msg.Headers().Get(core.KeyHeader); k != "" {
		return []byte(k)
	}
	return nil
}

func (m *message) Headers() map[string]string {
	raw := m.msg.Headers()
	h := make(map[string]string, len(raw))
	for k, v := range raw {
		if k == core.KeyHeader {
			continue
		}
		if len(v) > 0 {
			h[k] = v[0]
		}
	}
	return h
}

// toNats builds the JetStream message published for msg on subject.
func toNats(subject string, msg core.Message) *nats.Msg {
	headers := nats.Header{}
	for k, v := range msg.Headers() {
		headers.Set(k, v)
	}
	if key := msg.Key(); len(key) > 0 {
		headers.Set(core.KeyHeader, string(key))
	}
	return &nats.Msg{
		Subject: subject,
		Data:    msg.Value(),
		Header:  headers,
	}
}
