package mock

// Message is a simple core.Message implementation for testing.
type Message struct {
	T string
	K []byte
	V []byte
	H map[string]string
}

func (m *Message) Topic() string              { return m.T }
func (m *Message) Key() []byte                { return m.K }
func (m *Message) Value() []byte              { return m.V }
func (m *Message) Headers() map[string]string { return m.H }
