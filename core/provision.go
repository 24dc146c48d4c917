package core

import (
	"context"
	"errors"
	"fmt"
)

// TopicSpec describes a topic to create.
type TopicSpec struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	Config            map[string]string
}

// TopicDefaults are the partition count and replication factor applied
// before any connection customization.
type TopicDefaults struct {
	Partitions        int
	ReplicationFactor int
}

// DefaultTopicDefaults creates topics with one partition and one replica.
var DefaultTopicDefaults = TopicDefaults{Partitions: 1, ReplicationFactor: 1}

// Provision ensures topic and deadLetterTopic exist on connection.
// Topics that already exist are left untouched. The admin handle is closed
// before Provision returns.
func Provision(ctx context.Context, admins AdminPool, connection, topic, deadLetterTopic string, defaults TopicDefaults) (err error) {
	if defaults.Partitions <= 0 {
		defaults.Partitions = DefaultTopicDefaults.Partitions
	}
	if defaults.ReplicationFactor <= 0 {
		defaults.ReplicationFactor = DefaultTopicDefaults.ReplicationFactor
	}

	specs := make([]TopicSpec, 0, 2)
	for _, name := range []string{topic, deadLetterTopic} {
		spec := TopicSpec{
			Name:              name,
			Partitions:        defaults.Partitions,
			ReplicationFactor: defaults.ReplicationFactor,
		}
		if tc, ok := admins.(TopicCustomizer); ok {
			tc.CustomizeTopic(connection, &spec)
		}
		// the consumer reads and publishes by these names
		spec.Name = name
		specs = append(specs, spec)
	}

	admin, err := admins.Admin(ctx, connection)
	if err != nil {
		return fmt.Errorf("dlqmux: open admin on %q: %w", connection, err)
	}
	defer func() {
		if cerr := admin.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("dlqmux: close admin on %q: %w", connection, cerr)
		}
	}()

	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return fmt.Errorf("dlqmux: create topics on %q: %w", connection, err)
	}

	failed := make(map[string]error)
	for name, terr := range results {
		if terr == nil || errors.Is(terr, ErrTopicExists) {
			continue
		}
		failed[name] = terr
	}
	if len(failed) > 0 {
		return &ProvisionError{Errors: failed}
	}
	return nil
}
