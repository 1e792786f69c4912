package dsh_test

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
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassflow/dsh-go-sdk/dsh"
)

// selfSignedCert builds a self-signed certificate valid for 127.0.0.1, usable
// both as the trust anchor the SDK is told to trust (DSH_CA_CERTIFICATE) and
// as the mock server's own TLS certificate, so the bootstrap client's
// TLS-CA-trust handshake succeeds against it.
func selfSignedCert(t *testing.T) (certPEM string, keyDER []byte, key *ecdsa.PrivateKey, certDER []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err = x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	return certPEM, keyDER, key, der
}

// TestDshOffPlatformPKI covers scenario S1: a PKI_CONFIG_DIR with ca.crt,
// client.pem, and client-der.key (PKCS#8 DER) succeeds facade init and the
// certificate store's CA PEM matches the file contents.
func TestDshOffPlatformPKI(t *testing.T) {
	certPEM, keyDER, _, _ := selfSignedCert(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ca.crt"), []byte(certPEM), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "client.pem"), []byte(certPEM), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "client-der.key"), keyDER, 0o600))

	t.Setenv("DSH_TENANT_NAME", "t1")
	t.Setenv("MESOS_TASK_ID", "tsk1")
	t.Setenv("PKI_CONFIG_DIR", dir)

	d := dsh.New(nil)
	require.NoError(t, d.Init(context.Background()))

	require.NotNil(t, d.Certificates())
	assert.Equal(t, certPEM, d.Certificates().CAPEM())
	assert.Equal(t, "t1", d.TenantName())
}

// TestDshBootstrapHappyPath covers scenario S2: the DN and sign endpoints
// succeed over TLS-CA-trust, and the facade reports a non-nil certificate
// store plus the resolved tenant name.
func TestDshBootstrapHappyPath(t *testing.T) {
	caCertPEM, caKeyDER, caKey, caCertDER := selfSignedCert(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/dn/t1/tsk1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "CN=c,OU=u,O=o")
	})
	mux.HandleFunc("/sign/t1/tsk1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s", r.Header.Get("X-Kafka-Config-Token"))
		fmt.Fprint(w, caCertPEM)
	})
	mux.HandleFunc("/kafka/config/t1/tsk1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"brokers":["b1:9091"],"private_consumer_groups":["p"],"shared_consumer_groups":["s"]}`)
	})

	srv := httptest.NewUnstartedServer(mux)
	serverCert := tls.Certificate{Certificate: [][]byte{caCertDER}, PrivateKey: caKey}
	_ = caKeyDER
	srv.TLS = &tls.Config{Certificates: []tls.Certificate{serverCert}}
	srv.StartTLS()
	defer srv.Close()

	t.Setenv("DSH_SECRET_TOKEN", "s")
	t.Setenv("DSH_CA_CERTIFICATE", caCertPEM)
	t.Setenv("KAFKA_CONFIG_HOST", srv.URL)
	t.Setenv("MESOS_TASK_ID", "tsk1")
	t.Setenv("MARATHON_APP_ID", "/t1/app")

	d := dsh.New(nil)
	require.NoError(t, d.Init(context.Background()))

	require.NotNil(t, d.Certificates())
	assert.Equal(t, "t1", d.TenantName())
}
