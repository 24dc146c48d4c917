package core

import "context"

// DefaultConnection is the connection name used when a Binding leaves it empty.
const DefaultConnection = "default"

// ConsumerHandle is a broker consumer bound to one group.
// The core owns the handle it borrows and closes it on Dispose.
type ConsumerHandle interface {
	// Subscribe binds the handle to a topic. Called once, before Consume.
	Subscribe(ctx context.Context, topic string) error

	// Consume blocks until a message, an end-of-partition marker or an error
	// is available. Transient failures should be returned as *ConsumeError;
	// ErrHandleClosed means the handle will never deliver again.
	Consume(ctx context.Context) (ConsumeResult, error)

	// Commit advances the group's committed position past msg.
	Commit(ctx context.Context, msg Message) error

	Close() error
}

// ProducerHandle publishes messages. Producer handles are shared and owned by
// their pool; the core never closes them.
type ProducerHandle interface {
	Produce(ctx context.Context, topic string, msg Message) error
}

// AdminHandle provisions topics. It is scoped to one provisioning call.
type AdminHandle interface {
	// CreateTopics creates the given topics. Per-topic failures are returned in
	// the map (ErrTopicExists for topics already present); the error is for
	// failures of the request as a whole.
	CreateTopics(ctx context.Context, specs []TopicSpec) (map[string]error, error)
	Close() error
}

// ConsumerPool lends consumer handles keyed by (group, connection).
type ConsumerPool interface {
	Consumer(ctx context.Context, groupID, connection string) (ConsumerHandle, error)
}

// ProducerPool lends shared producer handles keyed by connection.
type ProducerPool interface {
	Producer(ctx context.Context, connection string) (ProducerHandle, error)
}

// AdminPool opens administrative handles keyed by connection.
type AdminPool interface {
	Admin(ctx context.Context, connection string) (AdminHandle, error)
}

// TopicCustomizer is optionally implemented by an AdminPool to adjust topic
// specifications per connection before they are created. Partitions,
// replication and config may change; a changed Name is ignored.
type TopicCustomizer interface {
	CustomizeTopic(connection string, spec *TopicSpec)
}

// Pools bundles the capabilities a Consumer borrows from.
type Pools struct {
	Consumers ConsumerPool
	Producers ProducerPool
	Admins    AdminPool
}

func (p Pools) valid() bool {
	return p.Consumers != nil && p.Producers != nil && p.Admins != nil
}
