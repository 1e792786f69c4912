package dsh

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/glassflow/dsh-go-sdk/certificates"
	"github.com/glassflow/dsh-go-sdk/datastream"
	"github.com/glassflow/dsh-go-sdk/schemaregistry"
)

// Dsh is the process-wide facade: environment resolution, mTLS identity
// provisioning, datastream discovery, and Kafka config building, behind a
// single handle. It is safe to share across goroutines. Initialization runs
// exactly once (via sync.Once) on the first Init call; accessors do not
// trigger it.
type Dsh struct {
	log *slog.Logger

	once    sync.Once
	initErr error

	env         TenantContext
	certs       *certificates.Store
	datastream  datastream.Datastream
	kafkaConfig *KafkaConfigBuilder

	mtlsClientOnce sync.Once
	mtlsClient     *http.Client
}

// New builds an uninitialized Dsh. log may be nil, in which case
// slog.Default() is used. Callers must call Init explicitly before using
// any accessor — accessors read their backing fields directly and do not
// trigger initialization themselves.
func New(log *slog.Logger) *Dsh {
	if log == nil {
		log = slog.Default()
	}
	return &Dsh{log: log}
}

// Init runs the one-time initialization pipeline. It is safe to call
// multiple times and from multiple goroutines; only the first call does
// work, and every caller observes the same result once it returns.
func (d *Dsh) Init(ctx context.Context) error {
	d.once.Do(func() { d.initErr = d.doInit(ctx) })
	return d.initErr
}

func (d *Dsh) doInit(ctx context.Context) error {
	env, err := ResolveEnv()
	if err != nil {
		return fmt.Errorf("dsh: resolve environment: %w", err)
	}
	d.env = env

	certs := d.loadCertificates(ctx, env)
	d.certs = certs

	ds := d.loadDatastream(ctx, env, certs)
	d.datastream = ds

	kafkaConfig, err := NewKafkaConfigBuilder(env, certs)
	if err != nil {
		return fmt.Errorf("dsh: build Kafka config builder: %w", err)
	}
	d.kafkaConfig = kafkaConfig

	return nil
}

// loadCertificates tries the PKI loader first, then bootstrap if a config
// host is reachable. Either path failing to produce certificates is not
// fatal to facade init: Certificates stays nil and the datastream path
// falls through to the local/default fallback, per spec §4.10.
func (d *Dsh) loadCertificates(ctx context.Context, env TenantContext) *certificates.Store {
	if env.PKIConfigDir != "" {
		store, err := certificates.LoadFromDir(env.PKIConfigDir, d.log)
		if err == nil {
			return &store
		}
		d.log.Warn("dsh: PKI loader failed, falling back to bootstrap", "dir", env.PKIConfigDir, "error", err)
	}

	if env.ConfigHost == "" {
		return nil
	}

	client, err := certificates.NewBootstrapClient(env.ConfigHost, env.SecretToken, env.CACertificate, env.ContainerDNSName, d.log)
	if err != nil {
		d.log.Warn("dsh: failed to build bootstrap client", "error", err)
		return nil
	}

	store, err := client.Bootstrap(ctx, env.TenantName, env.TaskID)
	if err != nil {
		d.log.Warn("dsh: bootstrap failed", "error", err)
		return nil
	}
	return &store
}

// loadDatastream fetches the datastream over mTLS when certificates are
// available, falling back to a local file and finally the hard-coded
// default, per spec §4.10 and §4.5. Any failure to read or parse
// local_datastreams.json (missing or malformed) falls back to the default;
// this function does not panic.
func (d *Dsh) loadDatastream(ctx context.Context, env TenantContext, certs *certificates.Store) datastream.Datastream {
	if certs != nil {
		client, err := d.buildMTLSClient(certs)
		if err == nil {
			fetcher := datastream.NewFetcher(env.ConfigHost, client)
			ds, err := fetcher.Fetch(ctx, env.TenantName, env.TaskID)
			if err == nil {
				return ds
			}
			d.log.Warn("dsh: datastream fetch failed, falling back to local file", "error", err)
		} else {
			d.log.Warn("dsh: failed to build mTLS client for datastream fetch", "error", err)
		}
	}

	ds, err := datastream.LoadLocalFile("")
	if err != nil {
		d.log.Info("dsh: no local datastream file, using default", "error", err)
		return datastream.Default()
	}
	return ds
}

func (d *Dsh) buildMTLSClient(certs *certificates.Store) (*http.Client, error) {
	builder, err := certs.HTTPClientConfig()
	if err != nil {
		return nil, err
	}
	return builder.WithTimeout(10 * time.Second).Build(), nil
}

// mtlsClientFor returns the memoized mTLS HTTP client, building it on first
// use. Exists so FetchDatastream doesn't re-handshake on every call.
func (d *Dsh) mtlsClientFor() (*http.Client, error) {
	if d.certs == nil {
		return nil, fmt.Errorf("dsh: no mTLS certificates available")
	}

	var buildErr error
	d.mtlsClientOnce.Do(func() {
		d.mtlsClient, buildErr = d.buildMTLSClient(d.certs)
	})
	if buildErr != nil {
		return nil, buildErr
	}
	if d.mtlsClient == nil {
		return nil, fmt.Errorf("dsh: mTLS HTTP client could not be built")
	}
	return d.mtlsClient, nil
}

// TenantName returns the resolved tenant name. Init must have run.
func (d *Dsh) TenantName() string { return d.env.TenantName }

// TaskID returns the resolved Mesos task ID. Init must have run.
func (d *Dsh) TaskID() string { return d.env.TaskID }

// ClientID is an alias for TaskID, matching spec's client_id = task_id.
func (d *Dsh) ClientID() string { return d.env.TaskID }

// Certificates returns the mTLS identity, or nil if neither PKI loading nor
// bootstrap succeeded.
func (d *Dsh) Certificates() *certificates.Store { return d.certs }

// Datastream returns the cached datastream. It is never mutated after
// first publication; use FetchDatastream for an ad-hoc refresh.
func (d *Dsh) Datastream() datastream.Datastream { return d.datastream }

// KafkaConfig returns the Kafka config builder bound to this facade's
// environment and certificates.
func (d *Dsh) KafkaConfig() *KafkaConfigBuilder { return d.kafkaConfig }

// SchemaRegistryURL returns the datastream's schema-store URL.
func (d *Dsh) SchemaRegistryURL() string { return d.datastream.SchemaStore }

// SchemaRegistryClient builds a schema-store handle for the datastream's
// schema-store URL. The SDK treats the schema registry as an external
// collaborator (spec §9 Open Question #1): it hands back a configured
// client and never fetches or interprets a schema itself.
func (d *Dsh) SchemaRegistryClient() (*schemaregistry.Client, error) {
	return schemaregistry.NewClient(schemaregistry.Config{URL: d.datastream.SchemaStore})
}

// MTLSHTTPClient returns the memoized mTLS HTTP client for calling external
// collaborators such as the schema registry.
func (d *Dsh) MTLSHTTPClient() (*http.Client, error) { return d.mtlsClientFor() }

// FetchDatastream performs an ad-hoc refresh using the memoized mTLS
// client, returning the fresh value without mutating the cached one.
func (d *Dsh) FetchDatastream(ctx context.Context) (datastream.Datastream, error) {
	client, err := d.mtlsClientFor()
	if err != nil {
		return datastream.Datastream{}, err
	}
	fetcher := datastream.NewFetcher(d.env.ConfigHost, client)
	return fetcher.Fetch(ctx, d.env.TenantName, d.env.TaskID)
}
