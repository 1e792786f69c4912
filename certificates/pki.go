package certificates

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadFromDir scans dir for pre-provisioned PKI material and builds a
// Store from it. It bypasses the bootstrap CSR flow entirely, for
// off-platform deployments behind a VPN or proxy.
func LoadFromDir(dir string, log *slog.Logger) (Store, error) {
	if log == nil {
		log = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Store{}, fmt.Errorf("certificates: read PKI directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	caPEM, err := firstValidCert(dir, filterNames(names, isCACertName), log)
	if err != nil {
		return Store{}, err
	}
	clientPEM, err := firstValidCert(dir, filterNames(names, isClientCertName), log)
	if err != nil {
		return Store{}, err
	}
	keyDER, err := firstValidKey(dir, filterNames(names, isClientKeyName), log)
	if err != nil {
		return Store{}, err
	}

	return New(caPEM, clientPEM, keyDER)
}

func filterNames(names []string, match func(string) bool) []string {
	var out []string
	for _, n := range names {
		if match(n) {
			out = append(out, n)
		}
	}
	return out
}

func isCACertName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "ca") && hasCertSuffix(lower)
}

func isClientCertName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "client") && hasCertSuffix(lower)
}

func isClientKeyName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "client") && strings.Contains(lower, ".key")
}

func hasCertSuffix(lower string) bool {
	return strings.HasSuffix(lower, ".crt") || strings.HasSuffix(lower, ".pem")
}

// firstValidCert reads each candidate in the order given (LoadFromDir passes
// them sorted by file name) and returns the
// concatenated PEM of the first file whose blocks are all CERTIFICATE
// blocks. It warns when more than one candidate matched the filename
// filter.
func firstValidCert(dir string, candidates []string, log *slog.Logger) (string, error) {
	if len(candidates) > 1 {
		log.Warn("certificates: multiple files match PKI filename filter, using first that parses", "candidates", candidates)
	}

	for _, name := range candidates {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("certificates: failed to read PKI candidate", "file", name, "error", err)
			continue
		}

		blocks, ok := allCertificateBlocks(raw)
		if !ok {
			log.Warn("certificates: PKI candidate is not a valid certificate PEM, skipping", "file", name)
			continue
		}

		return blocks, nil
	}

	return "", fmt.Errorf("%w: no certificate among %v", ErrNoCertificates, candidates)
}

func allCertificateBlocks(raw []byte) (string, bool) {
	var sb strings.Builder
	rest := raw
	blockCount := 0
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			return "", false
		}
		sb.Write(pem.EncodeToMemory(block))
		blockCount++
	}
	return sb.String(), blockCount > 0
}

// firstValidKey reads each candidate in the order given (sorted by file
// name) and returns the
// PKCS#8 DER of the first file that parses, first trying PEM then raw DER.
func firstValidKey(dir string, candidates []string, log *slog.Logger) ([]byte, error) {
	if len(candidates) > 1 {
		log.Warn("certificates: multiple files match PKI key filename filter, using first that parses", "candidates", candidates)
	}

	for _, name := range candidates {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("certificates: failed to read PKI key candidate", "file", name, "error", err)
			continue
		}

		der, ok := parsePrivateKeyBytes(raw)
		if !ok {
			log.Warn("certificates: PKI key candidate did not parse as PEM or DER, skipping", "file", name)
			continue
		}

		return der, nil
	}

	return nil, fmt.Errorf("%w: no private key among %v", ErrNoCertificates, candidates)
}

// parsePrivateKeyBytes tries PEM first (any of the usual private key block
// types), then falls back to treating raw as a DER-encoded key directly. In
// every case the result is normalized to PKCS#8 DER.
func parsePrivateKeyBytes(raw []byte) ([]byte, bool) {
	if block, _ := pem.Decode(raw); block != nil {
		if der, err := normalizeToPKCS8(block.Bytes); err == nil {
			return der, true
		}
	}
	if der, err := normalizeToPKCS8(raw); err == nil {
		return der, true
	}
	return nil, false
}

func normalizeToPKCS8(der []byte) ([]byte, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return x509.MarshalPKCS8PrivateKey(key)
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return x509.MarshalPKCS8PrivateKey(key)
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return x509.MarshalPKCS8PrivateKey(key)
	}
	return nil, fmt.Errorf("certificates: key bytes are not PKCS#8, SEC1, or PKCS#1")
}
