package management

import (
	"fmt"
	"net/http"

	"github.com/glassflow/dsh-go-sdk/platform"
)

// Builder assembles a Fetcher. clientID is either explicit or derived from
// (platform, tenant) as "robot:{realm}:{tenant}"; clientSecret is required.
type Builder struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	platformRealm string
	tenant        string
	haveTenant    bool
}

// NewBuilder starts a Builder targeting tokenURL (typically
// platform.Endpoints.ManagementTokenURL).
func NewBuilder(tokenURL string) *Builder {
	return &Builder{tokenURL: tokenURL}
}

// WithClientID sets an explicit client ID, overriding platform/tenant
// derivation.
func (b *Builder) WithClientID(clientID string) *Builder {
	b.clientID = clientID
	return b
}

// WithClientSecret sets the required client secret.
func (b *Builder) WithClientSecret(secret string) *Builder {
	b.clientSecret = secret
	return b
}

// WithTenant derives the client ID as "robot:{realm}:{tenant}" when no
// explicit client ID is set at Build time.
func (b *Builder) WithTenant(p platform.Platform, tenant string) *Builder {
	endpoints, err := p.Endpoints()
	if err == nil {
		b.platformRealm = endpoints.Realm
	}
	b.tenant = tenant
	b.haveTenant = true
	return b
}

// WithHTTPClient sets a custom HTTP client; the default carries no
// mandatory timeout, per spec §5.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// Build validates the accumulated options and returns a ready Fetcher.
func (b *Builder) Build() (*Fetcher, error) {
	clientID := b.clientID
	if clientID == "" && b.haveTenant {
		clientID = fmt.Sprintf("robot:%s:%s", b.platformRealm, b.tenant)
	}
	if clientID == "" {
		return nil, ErrMissingClientID
	}
	if b.clientSecret == "" {
		return nil, ErrMissingClientSecret
	}

	// No mandatory timeout on the management token client, per spec §5 —
	// unlike the protocol token fetchers, which default to 10s.
	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Fetcher{
		httpClient:   httpClient,
		tokenURL:     b.tokenURL,
		clientID:     clientID,
		clientSecret: b.clientSecret,
	}, nil
}
