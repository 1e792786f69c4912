// Package certificates holds the tenant's mTLS identity: the platform CA
// chain, the issued client certificate, and the keypair backing it. A Store
// is produced either by the PKI loader (pre-provisioned, off-platform) or by
// the bootstrap client (on-platform CSR flow), and is immutable from then on.
package certificates

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrNoCertificates is returned by the PKI loader when no directory entry
// satisfies both the filename filter and PEM parsing for a required slot.
var ErrNoCertificates = errors.New("certificates: no valid certificate or key found")

// Store is the immutable container for a tenant's mTLS identity. It is
// cheap to copy by value: the PEM strings and the PKCS#8 DER key bytes are
// shared, not duplicated, the same way copying a Go slice or string header
// shares its backing array rather than the data it points to.
type Store struct {
	caPEM         string
	clientCertPEM string
	keyPKCS8      []byte
}

// New builds a Store from already-obtained material. It does not verify
// that clientCertPEM chains to caPEM, nor that keyPKCS8 matches the
// certificate's subject public key — per spec, that trust is assumed from
// the issuer (bootstrap) or the operator (PKI directory), not re-derived.
func New(caPEM, clientCertPEM string, keyPKCS8 []byte) (Store, error) {
	if _, err := x509.ParseCertificate(firstCertDER(clientCertPEM)); err != nil {
		return Store{}, fmt.Errorf("certificates: parse client certificate: %w", err)
	}
	if _, err := x509.ParsePKCS8PrivateKey(keyPKCS8); err != nil {
		return Store{}, fmt.Errorf("certificates: parse private key: %w", err)
	}
	return Store{caPEM: caPEM, clientCertPEM: clientCertPEM, keyPKCS8: keyPKCS8}, nil
}

func firstCertDER(certPEM string) []byte {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil
	}
	return block.Bytes
}

// CAPEM returns the platform CA chain, concatenated PEM.
func (s Store) CAPEM() string { return s.caPEM }

// ClientCertPEM returns the issued client certificate, concatenated PEM.
func (s Store) ClientCertPEM() string { return s.clientCertPEM }

// PrivateKeyPKCS8 returns the PKCS#8 DER encoding of the private key.
func (s Store) PrivateKeyPKCS8() []byte { return s.keyPKCS8 }

// PrivateKeyPEM returns the PKCS#8 PEM encoding of the private key.
func (s Store) PrivateKeyPEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: s.keyPKCS8}))
}

// PublicKeyDER returns the SubjectPublicKeyInfo DER encoding of the public
// key, derived deterministically from the private key.
func (s Store) PublicKeyDER() ([]byte, error) {
	key, err := x509.ParsePKCS8PrivateKey(s.keyPKCS8)
	if err != nil {
		return nil, fmt.Errorf("certificates: parse private key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("certificates: private key does not expose a public key")
	}
	return x509.MarshalPKIXPublicKey(signer.Public())
}

// PublicKeyPEM returns the PEM encoding of PublicKeyDER.
func (s Store) PublicKeyPEM() (string, error) {
	der, err := s.PublicKeyDER()
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// ToFiles writes ca.crt, client.pem, and client.key into dir, creating it
// (and its parents) idempotently. Existing files are truncated.
func (s Store) ToFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("certificates: create directory %s: %w", dir, err)
	}

	files := map[string]string{
		"ca.crt":     s.caPEM,
		"client.pem": s.clientCertPEM,
		"client.key": s.PrivateKeyPEM(),
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		mode := os.FileMode(0o644)
		if name == "client.key" {
			mode = 0o600
		}
		if err := os.WriteFile(path, []byte(content), mode); err != nil {
			return fmt.Errorf("certificates: write %s: %w", path, err)
		}
	}
	return nil
}

// ClientConfigBuilder builds an *http.Client configured for mTLS against the
// platform, using the Store's CA as the sole trust root and the client
// cert+key as the mTLS identity. Grounded on the teacher's
// kafka.MakeTLSConfigFromStrings.
type ClientConfigBuilder struct {
	tlsConfig *tls.Config
	timeout   time.Duration
}

// HTTPClientConfig returns a builder for an mTLS-configured *http.Client.
func (s Store) HTTPClientConfig() (*ClientConfigBuilder, error) {
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM([]byte(s.caPEM)) {
		return nil, fmt.Errorf("certificates: no valid CA certificate found in CA PEM")
	}

	cert, err := tls.X509KeyPair([]byte(s.clientCertPEM), []byte(s.PrivateKeyPEM()))
	if err != nil {
		return nil, fmt.Errorf("certificates: build mTLS key pair: %w", err)
	}

	return &ClientConfigBuilder{
		tlsConfig: &tls.Config{
			MinVersion:   tls.VersionTLS12,
			RootCAs:      caCertPool,
			Certificates: []tls.Certificate{cert},
		},
	}, nil
}

// WithTimeout sets the total request timeout on the client to be built.
func (b *ClientConfigBuilder) WithTimeout(d time.Duration) *ClientConfigBuilder {
	b.timeout = d
	return b
}

// Build returns the configured *http.Client.
func (b *ClientConfigBuilder) Build() *http.Client {
	return &http.Client{
		Timeout:   b.timeout,
		Transport: &http.Transport{TLSClientConfig: b.tlsConfig},
	}
}
