// Package datastream models the platform-issued descriptor of a tenant's
// Kafka endpoints, ACLs, and group-id pool, and the fetcher that retrieves
// it over the tenant's mTLS channel.
package datastream

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNotFoundTopic is returned by GetStream and VerifyACL when a topic's
// short stream key has no entry in the datastream's stream map.
var ErrNotFoundTopic = errors.New("datastream: topic not found in stream map")

// Stream describes one short-named Kafka stream: its backing cluster, the
// regex/literal patterns governing read/write access, and its partitioning
// layout.
type Stream struct {
	Name              string `json:"name"`
	Cluster           string `json:"cluster"`
	ReadPattern       string `json:"readPattern"`
	WritePattern      string `json:"writePattern"`
	Partitions        int    `json:"partitions"`
	Replication       int    `json:"replication"`
	Partitioner       string `json:"partitioner"`
	PartitioningDepth int    `json:"partitioningDepth"`
	CanRetain         bool   `json:"canRetain"`
}

// Datastream is the platform's description of a tenant's Kafka endpoints,
// consumer-group pools, stream ACLs, and schema-registry location. It is
// immutable after construction; FetchDatastream-style refreshes produce a
// new value rather than mutating an existing one.
type Datastream struct {
	Brokers               []string
	Streams               map[string]Stream
	PrivateConsumerGroups []string
	SharedConsumerGroups  []string
	NonEnvelopedStreams   map[string]struct{}
	SchemaStore           string
}

// rawDatastream mirrors the wire JSON shape: top-level fields are
// snake_case, matching the platform's convention.
type rawDatastream struct {
	Brokers               []string          `json:"brokers"`
	Streams               map[string]Stream `json:"streams"`
	PrivateConsumerGroups []string          `json:"private_consumer_groups"`
	SharedConsumerGroups  []string          `json:"shared_consumer_groups"`
	NonEnvelopedStreams   []string          `json:"non_enveloped_streams"`
	SchemaStore           string            `json:"schema_store"`
}

// UnmarshalJSON decodes the wire format and turns the non_enveloped_streams
// list into a set for O(1) membership checks.
func (d *Datastream) UnmarshalJSON(data []byte) error {
	var raw rawDatastream
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	nonEnveloped := make(map[string]struct{}, len(raw.NonEnvelopedStreams))
	for _, name := range raw.NonEnvelopedStreams {
		nonEnveloped[name] = struct{}{}
	}

	d.Brokers = raw.Brokers
	d.Streams = raw.Streams
	d.PrivateConsumerGroups = raw.PrivateConsumerGroups
	d.SharedConsumerGroups = raw.SharedConsumerGroups
	d.NonEnvelopedStreams = nonEnveloped
	d.SchemaStore = raw.SchemaStore
	return nil
}

// MarshalJSON re-emits the wire format, mainly useful for LoadLocalFile
// round-trips and test fixtures.
func (d Datastream) MarshalJSON() ([]byte, error) {
	nonEnveloped := make([]string, 0, len(d.NonEnvelopedStreams))
	for name := range d.NonEnvelopedStreams {
		nonEnveloped = append(nonEnveloped, name)
	}
	return json.Marshal(rawDatastream{
		Brokers:               d.Brokers,
		Streams:               d.Streams,
		PrivateConsumerGroups: d.PrivateConsumerGroups,
		SharedConsumerGroups:  d.SharedConsumerGroups,
		NonEnvelopedStreams:   nonEnveloped,
		SchemaStore:           d.SchemaStore,
	})
}

// Default returns the hard-coded fallback datastream used when the SDK
// cannot bootstrap and no local_datastreams.json is present: a single
// localhost broker, one private and one shared group, no streams.
func Default() Datastream {
	return Datastream{
		Brokers:               []string{"localhost:9092"},
		Streams:               map[string]Stream{},
		PrivateConsumerGroups: []string{"default_private"},
		SharedConsumerGroups:  []string{"default_shared"},
		NonEnvelopedStreams:   map[string]struct{}{},
		SchemaStore:           "https://localhost:8081",
	}
}

// GroupKind discriminates between a tenant-task-private consumer group and
// one shared across instances of the tenant's application.
type GroupKind int

const (
	// Private selects from PrivateConsumerGroups.
	Private GroupKind = iota
	// Shared selects from SharedConsumerGroups.
	Shared
)

// GroupType selects a consumer group by kind and pool index.
type GroupType struct {
	Kind  GroupKind
	Index int
}

// PrivateGroup builds a GroupType selecting the private pool at index.
func PrivateGroup(index int) GroupType { return GroupType{Kind: Private, Index: index} }

// SharedGroup builds a GroupType selecting the shared pool at index.
func SharedGroup(index int) GroupType { return GroupType{Kind: Shared, Index: index} }

// Group resolves a GroupType against this datastream's group pools.
func (d Datastream) Group(gt GroupType) (string, error) {
	pool := d.SharedConsumerGroups
	poolName := "shared"
	if gt.Kind == Private {
		pool = d.PrivateConsumerGroups
		poolName = "private"
	}

	if gt.Index < 0 || gt.Index >= len(pool) {
		return "", fmt.Errorf("datastream: %s consumer group index %d out of range (pool size %d)", poolName, gt.Index, len(pool))
	}
	return pool[gt.Index], nil
}

// shortStreamKey reduces a fully qualified topic name to its short stream
// key: the first two dot-separated segments.
func shortStreamKey(topic string) string {
	segments := strings.SplitN(topic, ".", 3)
	if len(segments) < 2 {
		return topic
	}
	return segments[0] + "." + segments[1]
}

// GetStream looks up the Stream record for topic by its short stream key
// (the first two dot-segments of the full topic name).
func (d Datastream) GetStream(topic string) (Stream, error) {
	key := shortStreamKey(topic)
	stream, ok := d.Streams[key]
	if !ok {
		return Stream{}, fmt.Errorf("%w: %s", ErrNotFoundTopic, topic)
	}
	return stream, nil
}

// AccessMode discriminates a read check from a write check in VerifyACL.
type AccessMode int

const (
	// Read checks a stream's ReadPattern.
	Read AccessMode = iota
	// Write checks a stream's WritePattern.
	Write
)

var regexEscapeStripper = regexp.MustCompile(`\\`)

// VerifyACL checks that every topic in topics has a non-empty pattern for
// mode against this datastream's streams. Regex escape backslashes are
// stripped from the pattern before the emptiness check, matching the
// platform's own ACL string convention. An unknown topic is ErrNotFoundTopic.
func (d Datastream) VerifyACL(topics []string, mode AccessMode) error {
	for _, topic := range topics {
		stream, err := d.GetStream(topic)
		if err != nil {
			return err
		}

		pattern := stream.ReadPattern
		if mode == Write {
			pattern = stream.WritePattern
		}
		pattern = regexEscapeStripper.ReplaceAllString(pattern, "")

		if pattern == "" {
			return fmt.Errorf("datastream: no %s access to topic %s", accessModeName(mode), topic)
		}
	}
	return nil
}

func accessModeName(mode AccessMode) string {
	if mode == Write {
		return "write"
	}
	return "read"
}
