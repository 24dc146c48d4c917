package broker

import "github.com/miladsoleymani/dlqmux/core"

// Config holds the parameters of one named broker connection.
// Broker plugins extract the fields they need.
type Config struct {
	// Driver is the registered plugin name ("kafka", "nats", "rabbitmq").
	Driver string

	// Brokers is a list of broker addresses (e.g., "localhost:9092").
	Brokers []string

	// ConfigureTopic, when set, adjusts every topic specification provisioned
	// on this connection.
	ConfigureTopic func(spec *core.TopicSpec)

	// Extra holds plugin-specific configuration.
	Extra map[string]any
}
