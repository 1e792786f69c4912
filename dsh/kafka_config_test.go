package dsh_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassflow/dsh-go-sdk/datastream"
	"github.com/glassflow/dsh-go-sdk/dsh"
)

// TestConsumerConfigFromDatastream covers scenario S3: a datastream with
// brokers b1:9091,b2:9091 and one shared group t1_1 yields the matching
// consumer ConfigMap.
func TestConsumerConfigFromDatastream(t *testing.T) {
	t.Setenv("DSH_TENANT_NAME", "t1")
	t.Setenv("MESOS_TASK_ID", "tsk1")

	env, err := dsh.ResolveEnv()
	require.NoError(t, err)

	ds := datastream.Datastream{
		Brokers:              []string{"b1:9091", "b2:9091"},
		SharedConsumerGroups: []string{"t1_1"},
	}

	builder, err := dsh.NewKafkaConfigBuilder(env, nil)
	require.NoError(t, err)
	cfg, err := builder.ConsumerConfig(&ds, datastream.SharedGroup(0))
	require.NoError(t, err)

	assert.Equal(t, "b1:9091,b2:9091", cfg["bootstrap.servers"])
	assert.Equal(t, "t1_1", cfg["group.id"])
	assert.Equal(t, "tsk1", cfg["client.id"])
	assert.Equal(t, "plaintext", cfg["security.protocol"])
	assert.Equal(t, false, cfg["enable.auto.commit"])
	assert.Equal(t, "earliest", cfg["auto.offset.reset"])
}

func TestConsumerConfigGroupIDOverride(t *testing.T) {
	t.Setenv("DSH_TENANT_NAME", "t1")
	t.Setenv("KAFKA_GROUP_ID", "custom")

	env, err := dsh.ResolveEnv()
	require.NoError(t, err)

	ds := datastream.Datastream{Brokers: []string{"b1:9091"}}
	builder, err := dsh.NewKafkaConfigBuilder(env, nil)
	require.NoError(t, err)
	cfg, err := builder.ConsumerConfig(&ds, datastream.SharedGroup(0))
	require.NoError(t, err)

	assert.Equal(t, "t1_custom", cfg["group.id"])
}

func TestConsumerConfigOutOfRangeIndex(t *testing.T) {
	t.Setenv("DSH_TENANT_NAME", "t1")

	env, err := dsh.ResolveEnv()
	require.NoError(t, err)

	ds := datastream.Datastream{Brokers: []string{"b1:9091"}}
	builder, err := dsh.NewKafkaConfigBuilder(env, nil)
	require.NoError(t, err)
	_, err = builder.ConsumerConfig(&ds, datastream.SharedGroup(9))
	require.Error(t, err)
}

func TestProducerConfigOmitsConsumerKeys(t *testing.T) {
	t.Setenv("DSH_TENANT_NAME", "t1")

	env, err := dsh.ResolveEnv()
	require.NoError(t, err)

	ds := datastream.Datastream{Brokers: []string{"b1:9091"}}
	builder, err := dsh.NewKafkaConfigBuilder(env, nil)
	require.NoError(t, err)
	cfg := builder.ProducerConfig(&ds)

	_, hasGroup := cfg["group.id"]
	assert.False(t, hasGroup)
	_, hasAutoCommit := cfg["enable.auto.commit"]
	assert.False(t, hasAutoCommit)
}

func TestTuningKeysOmittedWhenUnset(t *testing.T) {
	t.Setenv("DSH_TENANT_NAME", "t1")

	env, err := dsh.ResolveEnv()
	require.NoError(t, err)

	ds := datastream.Datastream{Brokers: []string{"b1:9091"}}
	builder, err := dsh.NewKafkaConfigBuilder(env, nil)
	require.NoError(t, err)
	cfg := builder.ProducerConfig(&ds)

	_, has := cfg["batch.num.messages"]
	assert.False(t, has)
}

func TestTuningKeysIncludedWhenSet(t *testing.T) {
	t.Setenv("DSH_TENANT_NAME", "t1")
	t.Setenv("KAFKA_PRODUCER_BATCH_NUM_MESSAGES", "500")

	env, err := dsh.ResolveEnv()
	require.NoError(t, err)

	ds := datastream.Datastream{Brokers: []string{"b1:9091"}}
	builder, err := dsh.NewKafkaConfigBuilder(env, nil)
	require.NoError(t, err)
	cfg := builder.ProducerConfig(&ds)

	assert.Equal(t, 500, cfg["batch.num.messages"])
}
