// Package dsh is the top-level facade: it sequences environment resolution,
// mTLS identity provisioning, datastream discovery, and Kafka config
// building behind a single handle whose initialization runs once, on the
// first Init call.
package dsh

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	defaultTaskID           = "local_task_id"
	defaultKafkaConfigHost  = "https://kafka-config.marathon.mesos:4433"
	defaultGroupTypeLiteral = "shared"
	defaultAutoOffsetReset  = "earliest"
)

// UnsetEnvVarError is returned by ResolveEnv when a required environment
// variable (or every member of its fallback chain) is absent.
type UnsetEnvVarError struct {
	Name string
}

func (e *UnsetEnvVarError) Error() string {
	return fmt.Sprintf("dsh: required environment variable %s is not set", e.Name)
}

// ConsumerGroupType is the KAFKA_CONSUMER_GROUP_TYPE env var's parsed value.
type ConsumerGroupType string

const (
	ConsumerGroupPrivate ConsumerGroupType = "private"
	ConsumerGroupShared  ConsumerGroupType = "shared"
)

// TenantContext is the resolved set of environment-derived facts the facade
// needs to bootstrap: tenant identity, task identity, and the bootstrap
// materials (config host, secret token, CA, DNS SAN, PKI override dir).
type TenantContext struct {
	TenantName       string
	TaskID           string
	ConfigHost       string
	SecretToken      string
	CACertificate    string
	ContainerDNSName string
	PKIConfigDir     string

	ConsumerGroupType ConsumerGroupType
	GroupIDOverride   string
	BootstrapServers  string

	EnableAutoCommit bool
	AutoOffsetReset  string

	Topics []string
}

// ResolveEnv reads the environment variables documented in spec §4.1 into a
// TenantContext. It is a pure function of os.Environ() at call time; the
// facade caches the *result*, not the function.
func ResolveEnv() (TenantContext, error) {
	tenant, err := resolveTenantName()
	if err != nil {
		return TenantContext{}, err
	}

	configHost, err := resolveConfigHost()
	if err != nil {
		return TenantContext{}, err
	}

	secretToken, err := resolveSecretToken()
	if err != nil {
		return TenantContext{}, err
	}

	groupType := ConsumerGroupShared
	if raw, ok := os.LookupEnv("KAFKA_CONSUMER_GROUP_TYPE"); ok && raw == string(ConsumerGroupPrivate) {
		groupType = ConsumerGroupPrivate
	}

	var topics []string
	if raw := os.Getenv("TOPICS"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			topics = append(topics, strings.TrimSpace(t))
		}
	}

	return TenantContext{
		TenantName:        tenant,
		TaskID:            resolveTaskID(),
		ConfigHost:        configHost,
		SecretToken:       secretToken,
		CACertificate:     os.Getenv("DSH_CA_CERTIFICATE"),
		ContainerDNSName:  os.Getenv("DSH_CONTAINER_DNS_NAME"),
		PKIConfigDir:      os.Getenv("PKI_CONFIG_DIR"),
		ConsumerGroupType: groupType,
		GroupIDOverride:   os.Getenv("KAFKA_GROUP_ID"),
		BootstrapServers:  os.Getenv("KAFKA_BOOTSTRAP_SERVERS"),
		EnableAutoCommit:  parseBoolDefault(os.Getenv("KAFKA_ENABLE_AUTO_COMMIT"), false),
		AutoOffsetReset:   envOrDefault("KAFKA_AUTO_OFFSET_RESET", defaultAutoOffsetReset),
		Topics:            topics,
	}, nil
}

// resolveTenantName implements the MARATHON_APP_ID → DSH_TENANT_NAME
// fallback chain. MARATHON_APP_ID's value is "/<tenant>/<app>"; the tenant
// is its second path segment, or the whole value if it has no slashes.
// This assumes the leading slash real Marathon app IDs always carry: for an
// app id with no leading slash (e.g. "tenant/app"), this returns the first
// segment ("tenant"), not the second ("app").
func resolveTenantName() (string, error) {
	if appID, ok := os.LookupEnv("MARATHON_APP_ID"); ok {
		parts := strings.Split(strings.Trim(appID, "/"), "/")
		if len(parts) >= 1 && parts[0] != "" {
			return parts[0], nil
		}
		return appID, nil
	}

	if tenant, ok := os.LookupEnv("DSH_TENANT_NAME"); ok && tenant != "" {
		return tenant, nil
	}

	return "", &UnsetEnvVarError{Name: "MARATHON_APP_ID"}
}

func resolveTaskID() string {
	if taskID, ok := os.LookupEnv("MESOS_TASK_ID"); ok && taskID != "" {
		return taskID
	}
	return defaultTaskID
}

// resolveConfigHost implements KAFKA_CONFIG_HOST → DSH_KAFKA_CONFIG_ENDPOINT
// → hard-coded default, prepending https:// when the scheme is absent.
func resolveConfigHost() (string, error) {
	host, ok := os.LookupEnv("KAFKA_CONFIG_HOST")
	if !ok || host == "" {
		host, ok = os.LookupEnv("DSH_KAFKA_CONFIG_ENDPOINT")
	}
	if !ok || host == "" {
		host = defaultKafkaConfigHost
	}

	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host, nil
}

// resolveSecretToken reads DSH_SECRET_TOKEN, falling back to the contents of
// the file named by DSH_SECRET_TOKEN_PATH. The literal env var wins when
// both are set.
func resolveSecretToken() (string, error) {
	if token, ok := os.LookupEnv("DSH_SECRET_TOKEN"); ok && token != "" {
		return token, nil
	}

	if path, ok := os.LookupEnv("DSH_SECRET_TOKEN_PATH"); ok && path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("dsh: read secret token file %s: %w", path, err)
		}
		return strings.TrimRight(string(raw), "\n"), nil
	}

	return "", nil
}

func parseBoolDefault(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envOrDefault(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return def
}
