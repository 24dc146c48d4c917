package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/dlqmux/core"
	"github.com/miladsoleymani/dlqmux/internal/mock"
)

func TestProvision_CreatesBothTopics(t *testing.T) {
	pool := mock.NewPool()
	err := core.Provision(context.Background(), pool, "default", "orders", "orders.dlq",
		core.TopicDefaults{Partitions: 3, ReplicationFactor: 2})
	require.NoError(t, err)

	assert.Equal(t, []core.TopicSpec{
		{Name: "orders", Partitions: 3, ReplicationFactor: 2},
		{Name: "orders.dlq", Partitions: 3, ReplicationFactor: 2},
	}, pool.Manager.Created())
	assert.Equal(t, 1, pool.Manager.Closes())
}

func TestProvision_ZeroDefaults(t *testing.T) {
	pool := mock.NewPool()
	require.NoError(t, core.Provision(context.Background(), pool, "default", "a", "b", core.TopicDefaults{}))

	for _, spec := range pool.Manager.Created() {
		assert.Equal(t, 1, spec.Partitions)
		assert.Equal(t, 1, spec.ReplicationFactor)
	}
}

func TestProvision_ExistingTopicsSucceed(t *testing.T) {
	pool := mock.NewPool()
	pool.Manager.AddTopic("orders")
	pool.Manager.AddTopic("orders.dlq")

	require.NoError(t, core.Provision(context.Background(), pool, "default", "orders", "orders.dlq", core.DefaultTopicDefaults))
	assert.Empty(t, pool.Manager.Created())
}

func TestProvision_Customizer(t *testing.T) {
	pool := mock.NewPool()
	var seen []string
	pool.Customize = func(connection string, spec *core.TopicSpec) {
		seen = append(seen, connection+"/"+spec.Name)
		spec.Partitions = 12
		spec.Config = map[string]string{"retention.ms": "604800000"}
	}

	require.NoError(t, core.Provision(context.Background(), pool, "eu", "orders", "orders.dlq", core.DefaultTopicDefaults))

	assert.Equal(t, []string{"eu/orders", "eu/orders.dlq"}, seen)
	for _, spec := range pool.Manager.Created() {
		assert.Equal(t, 12, spec.Partitions)
		assert.Equal(t, "604800000", spec.Config["retention.ms"])
	}
}

func TestProvision_CustomizerCannotRename(t *testing.T) {
	pool := mock.NewPool()
	pool.Customize = func(_ string, spec *core.TopicSpec) {
		spec.Name = "orders"
		spec.Partitions = 3
	}

	require.NoError(t, core.Provision(context.Background(), pool, "default", "orders", "orders.dlq", core.DefaultTopicDefaults))

	created := pool.Manager.Created()
	require.Len(t, created, 2)
	assert.Equal(t, "orders", created[0].Name)
	assert.Equal(t, "orders.dlq", created[1].Name)
	assert.Equal(t, 3, created[1].Partitions)
}

func TestProvision_Errors(t *testing.T) {
	t.Run("admin open", func(t *testing.T) {
		pool := mock.NewPool()
		pool.AdminErr = errors.New("dial timeout")
		err := core.Provision(context.Background(), pool, "default", "a", "b", core.DefaultTopicDefaults)
		assert.ErrorContains(t, err, "dial timeout")
	})

	t.Run("request", func(t *testing.T) {
		pool := mock.NewPool()
		pool.Manager.Err = errors.New("not controller")
		err := core.Provision(context.Background(), pool, "default", "a", "b", core.DefaultTopicDefaults)
		assert.ErrorContains(t, err, "not controller")
		assert.Equal(t, 1, pool.Manager.Closes())
	})

	t.Run("per topic", func(t *testing.T) {
		pool := mock.NewPool()
		denied := errors.New("authorization failed")
		pool.Manager.TopicErr = map[string]error{"b": denied}
		err := core.Provision(context.Background(), pool, "default", "a", "b", core.DefaultTopicDefaults)

		var perr *core.ProvisionError
		require.ErrorAs(t, err, &perr)
		assert.ErrorIs(t, err, denied)
		assert.Equal(t, `dlqmux: create topic "b": authorization failed`, err.Error())
	})
}
