package certificates

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/glassflow/dsh-go-sdk/dsherr"
)

const (
	maxBootstrapAttempts = 30
	maxBootstrapDelay    = 60 * time.Second
)

// DistinguishedName is the platform-issued subject identity for the CSR.
type DistinguishedName struct {
	CN string
	OU string
	O  string
}

// ParseDN parses the comma-separated "K=V" list the platform returns from
// GET /dn/{tenant}/{task_id}. All three components are required.
func ParseDN(raw string) (DistinguishedName, error) {
	var dn DistinguishedName
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "CN":
			dn.CN = kv[1]
		case "OU":
			dn.OU = kv[1]
		case "O":
			dn.O = kv[1]
		}
	}
	if dn.CN == "" || dn.OU == "" || dn.O == "" {
		return DistinguishedName{}, fmt.Errorf("certificates: distinguished name missing CN, OU, or O: %q", raw)
	}
	return dn, nil
}

// BootstrapClient performs the two-step CSR protocol against the platform
// config host over a CA-trusted HTTPS channel.
type BootstrapClient struct {
	configHost       string
	secretToken      string
	caPEM            string
	containerDNSName string
	httpClient       *http.Client
	log              *slog.Logger
}

// NewBootstrapClient builds a BootstrapClient trusting caPEM for the
// one-shot HTTPS channel used before a client certificate exists.
func NewBootstrapClient(configHost, secretToken, caPEM, containerDNSName string, log *slog.Logger) (*BootstrapClient, error) {
	if log == nil {
		log = slog.Default()
	}

	httpClient := http.DefaultClient
	if caPEM != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(caPEM)) {
			return nil, fmt.Errorf("certificates: no valid CA certificate found in DSH_CA_CERTIFICATE")
		}
		//nolint:gosec // MinVersion set explicitly below, no InsecureSkipVerify
		httpClient = &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    pool,
		}}}
	}

	return &BootstrapClient{
		configHost:       strings.TrimRight(configHost, "/"),
		secretToken:      secretToken,
		caPEM:            caPEM,
		containerDNSName: containerDNSName,
		httpClient:       httpClient,
		log:              log,
	}, nil
}

// Bootstrap runs the DN fetch, keypair generation, CSR build, and CSR
// submission, returning the resulting Store.
func (c *BootstrapClient) Bootstrap(ctx context.Context, tenant, taskID string) (Store, error) {
	dn, err := c.fetchDN(ctx, tenant, taskID)
	if err != nil {
		return Store{}, fmt.Errorf("certificates: fetch distinguished name: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return Store{}, fmt.Errorf("certificates: generate keypair: %w", err)
	}

	csrDER, err := buildCSR(key, dn, c.containerDNSName)
	if err != nil {
		return Store{}, fmt.Errorf("certificates: build CSR: %w", err)
	}
	csrPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})

	clientCertPEM, err := c.submitCSR(ctx, tenant, taskID, csrPEM)
	if err != nil {
		return Store{}, fmt.Errorf("certificates: submit CSR: %w", err)
	}

	keyPKCS8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return Store{}, fmt.Errorf("certificates: marshal private key: %w", err)
	}

	return New(c.caPEM, clientCertPEM, keyPKCS8)
}

func (c *BootstrapClient) fetchDN(ctx context.Context, tenant, taskID string) (DistinguishedName, error) {
	url := fmt.Sprintf("%s/dn/%s/%s", c.configHost, tenant, taskID)

	body, err := c.doWithRetry(ctx, url, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("X-Request-Id", uuid.New().String())
		return c.doRequest(req, url)
	})
	if err != nil {
		return DistinguishedName{}, err
	}

	return ParseDN(body)
}

func (c *BootstrapClient) submitCSR(ctx context.Context, tenant, taskID string, csrPEM []byte) (string, error) {
	url := fmt.Sprintf("%s/sign/%s/%s", c.configHost, tenant, taskID)

	return c.doWithRetry(ctx, url, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(csrPEM)))
		if err != nil {
			return "", err
		}
		req.Header.Set("X-Kafka-Config-Token", c.secretToken)
		req.Header.Set("X-Request-Id", uuid.New().String())
		return c.doRequest(req, url)
	})
}

func (c *BootstrapClient) doRequest(req *http.Request, url string) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body from %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &dsherr.HTTPStatusError{URL: url, Status: resp.StatusCode, Body: string(body)}
	}

	return string(body), nil
}

// doWithRetry retries fn up to maxBootstrapAttempts times on any error
// (transport failure or non-2xx, both surfaced by doRequest as errors),
// sleeping min(2^attempt, 60s) between attempts, surfacing the last error
// after exhaustion.
func (c *BootstrapClient) doWithRetry(ctx context.Context, url string, fn func(context.Context) (string, error)) (string, error) {
	var result string
	attempt := 0

	err := retry.Do(
		func() error {
			attempt++
			var err error
			result, err = fn(ctx)
			if err != nil {
				c.log.Warn("certificates: bootstrap call failed, retrying", "url", url, "attempt", attempt, "error", err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(maxBootstrapAttempts),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return capExpBackoff(n)
		}),
	)
	if err != nil {
		return "", err
	}
	return result, nil
}

func capExpBackoff(attempt uint) time.Duration {
	if attempt > 5 {
		return maxBootstrapDelay
	}
	d := time.Duration(1<<attempt) * time.Second
	if d > maxBootstrapDelay {
		return maxBootstrapDelay
	}
	return d
}

func buildCSR(key *ecdsa.PrivateKey, dn DistinguishedName, containerDNSName string) ([]byte, error) {
	template := &x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName:         dn.CN,
			OrganizationalUnit: []string{dn.OU},
			Organization:       []string{dn.O},
		},
		SignatureAlgorithm: x509.ECDSAWithSHA384,
	}
	if containerDNSName != "" {
		template.DNSNames = []string{containerDNSName}
	}

	return x509.CreateCertificateRequest(rand.Reader, template, key)
}
