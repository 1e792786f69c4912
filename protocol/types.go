package protocol

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// validityMargin is the minimum remaining lifetime (seconds) a token must
// have to be considered valid, per spec §3/§8 invariant #2.
const validityMargin = 5 * time.Second

// MqttTokenClaim is the "datastreams/v0/mqtt/token" sub-claim restricting
// what data-access tokens may be minted from a RestToken. Per DESIGN.md's
// Open Question #2, the inner Claims array is preserved opaque and never
// branched on.
type MqttTokenClaim struct {
	ID     *string         `json:"id,omitempty"`
	Tenant *string         `json:"tenant,omitempty"`
	RelExp *int64          `json:"relexp,omitempty"`
	Exp    *int64          `json:"exp,omitempty"`
	Claims json.RawMessage `json:"claims,omitempty"`
}

// Claims is the structured "claims" field carried by a RestToken JWT.
type Claims struct {
	MqttTokenClaim *MqttTokenClaim `json:"datastreams/v0/mqtt/token,omitempty"`
}

// RestToken is parsed from a REST-token JWT payload.
type RestToken struct {
	Gen      string `json:"gen"`
	Endpoint string `json:"endpoint"`
	Iss      string `json:"iss"`
	Claims   Claims `json:"claims"`
	Exp      int64  `json:"exp"`
	TenantID string `json:"tenant_id"`

	Raw string `json:"-"`
}

// IsValid reports whether the token has at least validityMargin of life
// left at now, and carries a non-empty raw token string.
func (t RestToken) IsValid(now time.Time) bool {
	return t.Raw != "" && time.Unix(t.Exp, 0).After(now.Add(validityMargin))
}

// ParseRestToken decodes raw as a JWT and parses its payload into a
// RestToken, retaining the original raw string.
func ParseRestToken(raw string) (RestToken, error) {
	payload, err := DecodeJWTPayload(raw)
	if err != nil {
		return RestToken{}, err
	}

	var token RestToken
	if err := json.Unmarshal(payload, &token); err != nil {
		return RestToken{}, fmt.Errorf("protocol: parse REST token payload: %w", err)
	}
	token.Raw = raw
	return token, nil
}

// Action is a TopicPermission's allowed operation.
type Action string

const (
	ActionPublish   Action = "publish"
	ActionSubscribe Action = "subscribe"
)

// ResourceType discriminates the kind of resource a TopicPermission grants
// access to. Topic is the only kind the platform currently issues.
type ResourceType string

const ResourceTypeTopic ResourceType = "topic"

// Resource identifies the topic (or stream/prefix) a permission covers.
type Resource struct {
	Type   ResourceType `json:"type"`
	Stream string       `json:"stream,omitempty"`
	Prefix string       `json:"prefix,omitempty"`
	Topic  string       `json:"topic,omitempty"`
}

// TopicPermission grants one Action over one Resource.
type TopicPermission struct {
	Action   Action   `json:"action"`
	Resource Resource `json:"resource"`
}

// Ports carries the MQTT/MQTT-over-WSS ports a DataAccessToken authorizes.
type Ports struct {
	Mqtts   []uint16 `json:"mqtts"`
	Mqttwss []uint16 `json:"mqttwss"`
}

// DataAccessToken is parsed from a data-access-token JWT payload.
type DataAccessToken struct {
	Gen      string            `json:"gen"`
	Endpoint string            `json:"endpoint"`
	Ports    Ports             `json:"ports"`
	Iss      string            `json:"iss"`
	Claims   []TopicPermission `json:"claims"`
	Exp      int64             `json:"exp"`
	ClientID string            `json:"client_id"`
	Iat      int64             `json:"iat"`
	TenantID string            `json:"tenant_id"`

	Raw string `json:"-"`
}

// IsValid reports whether the token has at least validityMargin of life
// left at now, and carries a non-empty raw token string.
func (t DataAccessToken) IsValid(now time.Time) bool {
	return t.Raw != "" && time.Unix(t.Exp, 0).After(now.Add(validityMargin))
}

// ParseDataAccessToken decodes raw as a JWT and parses its payload into a
// DataAccessToken, retaining the original raw string.
func ParseDataAccessToken(raw string) (DataAccessToken, error) {
	payload, err := DecodeJWTPayload(raw)
	if err != nil {
		return DataAccessToken{}, err
	}

	var token DataAccessToken
	if err := json.Unmarshal(payload, &token); err != nil {
		return DataAccessToken{}, fmt.Errorf("protocol: parse data-access token payload: %w", err)
	}
	token.Raw = raw
	return token, nil
}

// clientIDPattern is the allowed alphabet for RequestDataAccessToken.ID:
// alphanumerics plus @-_.: , at most 64 characters total (checked
// separately).
var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9@\-_.:]+$`)

// ValidateClientID enforces spec §4.9's client-id constraint: at most 64
// characters, drawn from the alphanumeric + "@-_.:" alphabet.
func ValidateClientID(id string) error {
	if len(id) == 0 || len(id) > 64 {
		return fmt.Errorf("%w: length %d exceeds 64 or is empty", ErrInvalidClientID, len(id))
	}
	if !clientIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q contains disallowed characters", ErrInvalidClientID, id)
	}
	return nil
}

// RequestClaims is the optional claims payload a caller may attach to a
// RequestDataAccessToken.
type RequestClaims struct {
	MqttTokenClaim *MqttTokenClaimRequest `json:"datastreams/v0/mqtt/token,omitempty"`
}

// MqttTokenClaimRequest is the caller-supplied restriction a
// RequestDataAccessToken may carry.
type MqttTokenClaimRequest struct {
	ID     *string `json:"id,omitempty"`
	Tenant *string `json:"tenant,omitempty"`
	RelExp *int64  `json:"relexp,omitempty"`
}

// RequestDataAccessToken is both the wire body POSTed to mint a data-access
// token and the cache key for the data-access token cache.
type RequestDataAccessToken struct {
	Tenant string         `json:"tenant"`
	ID     string         `json:"id"`
	Exp    *int64         `json:"exp,omitempty"`
	Claims *RequestClaims `json:"claims,omitempty"`
	Dshclc *string        `json:"dshclc,omitempty"`
}

// cacheKey returns a stable identity for req that excludes Exp, per spec
// §3/§8 invariant #4: two requests differing only in Exp hash and compare
// equal, sharing a cache slot.
func (req RequestDataAccessToken) cacheKey() (string, error) {
	keyed := req
	keyed.Exp = nil

	raw, err := json.Marshal(keyed)
	if err != nil {
		return "", fmt.Errorf("protocol: marshal cache key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%x", sum), nil
}

// requesterID returns req.Claims.MqttTokenClaim.ID if set, else req.Tenant —
// the id used to key the REST token ensured before minting a data-access
// token, per spec §4.9 step 2.
func (req RequestDataAccessToken) requesterID() string {
	if req.Claims != nil && req.Claims.MqttTokenClaim != nil && req.Claims.MqttTokenClaim.ID != nil {
		return *req.Claims.MqttTokenClaim.ID
	}
	return req.Tenant
}
