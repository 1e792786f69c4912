// Package protocol implements the platform's JWT-based REST and data-access
// token issuance: payload decoding, the two structured token shapes, and the
// fetchers with their read/write-locked caches.
package protocol

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeJWTPayload splits raw on '.', requiring at least two segments, and
// base64url-decodes the payload (segment 1) with no padding. The header and
// signature are not validated — the SDK trusts the issuing endpoint over
// TLS, per spec §4.7.
func DecodeJWTPayload(raw string) ([]byte, error) {
	segments := strings.Split(raw, ".")
	if len(segments) < 2 {
		return nil, fmt.Errorf("protocol: malformed JWT: expected at least 2 segments, got %d", len(segments))
	}

	payload, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return nil, fmt.Errorf("protocol: decode JWT payload: %w", err)
	}
	return payload, nil
}
