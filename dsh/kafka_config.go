package dsh

import (
	"fmt"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/kelseyhightower/envconfig"

	"github.com/glassflow/dsh-go-sdk/certificates"
	"github.com/glassflow/dsh-go-sdk/datastream"
)

// tuning holds the purely optional, single-source Kafka tuning knobs from
// spec §4.1. Each field is a pointer so envconfig.Process leaves it nil when
// the env var is absent, rather than defaulting to zero — "unset = library
// default", not "unset = 0". No fallback chain is needed for any of these
// (unlike the resolver table in env.go), so envconfig.Process handles them
// directly instead of field-by-field os.Getenv reads, the way
// cmd/glassflow/main.go processes its own config struct.
type tuning struct {
	ConsumerSessionTimeoutMS             *int `envconfig:"KAFKA_CONSUMER_SESSION_TIMEOUT_MS"`
	ConsumerQueuedBufferingMaxMessagesKB *int `envconfig:"KAFKA_CONSUMER_QUEUED_BUFFERING_MAX_MESSAGES_KBYTES"`
	ProducerBatchNumMessages             *int `envconfig:"KAFKA_PRODUCER_BATCH_NUM_MESSAGES"`
	ProducerQueueBufferingMaxMessages    *int `envconfig:"KAFKA_PRODUCER_QUEUE_BUFFERING_MAX_MESSAGES"`
	ProducerQueueBufferingMaxKB          *int `envconfig:"KAFKA_PRODUCER_QUEUE_BUFFERING_MAX_KBYTES"`
	ProducerQueueBufferingMaxMS          *int `envconfig:"KAFKA_PRODUCER_QUEUE_BUFFERING_MAX_MS"`
}

// readTuning processes the tuning env vars via envconfig.Process. The empty
// prefix is deliberate: every field carries an explicit envconfig tag naming
// the exact spec §4.1 variable, so no PREFIX_ derivation is wanted.
func readTuning() (tuning, error) {
	var t tuning
	if err := envconfig.Process("", &t); err != nil {
		return tuning{}, fmt.Errorf("dsh: process Kafka tuning env vars: %w", err)
	}
	return t, nil
}

// KafkaConfigBuilder produces librdkafka-style kafka.ConfigMap values for
// consumers and producers, directly grounded on the teacher's
// buildConfluentConfig/configureSecurity base-then-overlay structure.
type KafkaConfigBuilder struct {
	env    TenantContext
	certs  *certificates.Store
	tuning tuning
}

// NewKafkaConfigBuilder builds a KafkaConfigBuilder. certs may be nil, in
// which case security.protocol is "plaintext" and no ssl.* keys are set.
// Errors only if one of the tuning env vars is set to an unparseable value.
func NewKafkaConfigBuilder(env TenantContext, certs *certificates.Store) (*KafkaConfigBuilder, error) {
	t, err := readTuning()
	if err != nil {
		return nil, err
	}
	return &KafkaConfigBuilder{env: env, certs: certs, tuning: t}, nil
}

// baseConfig fills bootstrap.servers, client.id, and the security keys
// shared by both the consumer and producer builders.
func (b *KafkaConfigBuilder) baseConfig(ds *datastream.Datastream) kafka.ConfigMap {
	brokers := b.env.BootstrapServers
	if brokers == "" {
		brokers = strings.Join(ds.Brokers, ",")
	}

	cfg := kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         b.env.TaskID,
	}

	if b.certs != nil {
		cfg["security.protocol"] = "ssl"
		cfg["ssl.key.pem"] = b.certs.PrivateKeyPEM()
		cfg["ssl.certificate.pem"] = b.certs.ClientCertPEM()
		cfg["ssl.ca.pem"] = b.certs.CAPEM()
	} else {
		cfg["security.protocol"] = "plaintext"
	}

	return cfg
}

// ConsumerConfig produces a consumer ConfigMap. groupType selects which
// consumer-group pool and index to use unless KAFKA_GROUP_ID overrides it.
func (b *KafkaConfigBuilder) ConsumerConfig(ds *datastream.Datastream, groupType datastream.GroupType) (kafka.ConfigMap, error) {
	cfg := b.baseConfig(ds)

	groupID := b.env.GroupIDOverride
	if groupID == "" {
		resolved, err := ds.Group(groupType)
		if err != nil {
			return nil, err
		}
		groupID = resolved
	} else if !strings.HasPrefix(groupID, b.env.TenantName+"_") {
		groupID = b.env.TenantName + "_" + groupID
	}
	cfg["group.id"] = groupID

	cfg["enable.auto.commit"] = b.env.EnableAutoCommit
	cfg["auto.offset.reset"] = b.env.AutoOffsetReset

	if b.tuning.ConsumerSessionTimeoutMS != nil {
		cfg["session.timeout.ms"] = *b.tuning.ConsumerSessionTimeoutMS
	}
	if b.tuning.ConsumerQueuedBufferingMaxMessagesKB != nil {
		cfg["queued.max.messages.kbytes"] = *b.tuning.ConsumerQueuedBufferingMaxMessagesKB
	}

	return cfg, nil
}

// ProducerConfig produces a producer ConfigMap: the consumer builder minus
// group.id/enable.auto.commit/auto.offset.reset, with producer tuning keys.
func (b *KafkaConfigBuilder) ProducerConfig(ds *datastream.Datastream) kafka.ConfigMap {
	cfg := b.baseConfig(ds)

	if b.tuning.ProducerBatchNumMessages != nil {
		cfg["batch.num.messages"] = *b.tuning.ProducerBatchNumMessages
	}
	if b.tuning.ProducerQueueBufferingMaxMessages != nil {
		cfg["queue.buffering.max.messages"] = *b.tuning.ProducerQueueBufferingMaxMessages
	}
	if b.tuning.ProducerQueueBufferingMaxKB != nil {
		cfg["queue.buffering.max.kbytes"] = *b.tuning.ProducerQueueBufferingMaxKB
	}
	if b.tuning.ProducerQueueBufferingMaxMS != nil {
		cfg["queue.buffering.max.ms"] = *b.tuning.ProducerQueueBufferingMaxMS
	}

	return cfg
}
