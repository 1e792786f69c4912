// Package schemaregistry is a thin handle onto the platform's schema-store
// HTTP endpoint. Per spec.md §9's first Open Question, schema fetching and
// interpretation (PROTOBUF/AVRO/JSON) is treated as an external
// collaborator's concern: this package hands back a configured *sr.Client
// and nothing more. It does not fetch or parse a schema itself.
package schemaregistry

import (
	"fmt"

	"github.com/twmb/franz-go/pkg/sr"
)

// Config names the schema-store endpoint the facade discovered via the
// datastream, plus optional credentials for platforms that front it with
// basic auth.
type Config struct {
	URL       string
	APIKey    string
	APISecret string
}

// Client wraps a *sr.Client configured against the tenant's schema store.
// Callers use it with the franz-go/pkg/sr API directly; the SDK does not
// add behavior on top.
type Client struct {
	raw *sr.Client
}

// NewClient builds a Client from the given Config. URL is required.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("schemaregistry: URL is required")
	}

	opts := []sr.ClientOpt{sr.URLs(cfg.URL)}
	if cfg.APIKey != "" && cfg.APISecret != "" {
		opts = append(opts, sr.BasicAuth(cfg.APIKey, cfg.APISecret))
	}

	raw, err := sr.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("schemaregistry: create client: %w", err)
	}
	return &Client{raw: raw}, nil
}

// Raw returns the underlying *sr.Client for direct use (SchemaByID,
// SchemaByVersion, ...). The SDK does not wrap these calls: schema
// fetching/interpretation is out of scope per spec.md §1/§9.
func (c *Client) Raw() *sr.Client { return c.raw }
