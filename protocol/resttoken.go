package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/glassflow/dsh-go-sdk/dsherr"
)

// RestTokenRequest is the body POSTed to mint a REST token.
type RestTokenRequest struct {
	Tenant string         `json:"tenant"`
	Exp    *int64         `json:"exp,omitempty"`
	Claims *RequestClaims `json:"claims,omitempty"`

	// RequesterID, if set, scopes the cache slot independently of Tenant;
	// it defaults to Tenant when empty, per spec §4.9.
	RequesterID string `json:"-"`
}

func (r RestTokenRequest) requesterID() string {
	if r.RequesterID != "" {
		return r.RequesterID
	}
	return r.Tenant
}

type restCacheKey struct {
	tenant      string
	requesterID string
}

// RestTokenFetcher caches REST tokens keyed by (tenant, requester_id), with
// exclusive-on-write/shared-on-read locking and a post-acquisition recheck
// to suppress refresh stampedes, per spec §4.9/§5.
type RestTokenFetcher struct {
	httpClient *http.Client
	tokenURL   string
	apiKey     string

	mu    sync.RWMutex
	cache map[restCacheKey]RestToken
}

// NewRestTokenFetcher builds a RestTokenFetcher posting to tokenURL with the
// given apikey header value.
func NewRestTokenFetcher(tokenURL, apiKey string, httpClient *http.Client) *RestTokenFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RestTokenFetcher{
		httpClient: httpClient,
		tokenURL:   tokenURL,
		apiKey:     apiKey,
		cache:      make(map[restCacheKey]RestToken),
	}
}

// FetchRestToken returns a cached valid token or mints a new one. Per spec
// §8 invariant #3, concurrent cold-cache callers collapse onto one POST.
func (f *RestTokenFetcher) FetchRestToken(ctx context.Context, req RestTokenRequest) (RestToken, error) {
	key := restCacheKey{tenant: req.Tenant, requesterID: req.requesterID()}
	now := time.Now()

	f.mu.RLock()
	token, ok := f.cache[key]
	f.mu.RUnlock()
	if ok && token.IsValid(now) {
		return token, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if token, ok := f.cache[key]; ok && token.IsValid(time.Now()) {
		return token, nil
	}

	token, err := f.mintRestToken(ctx, req)
	if err != nil {
		return RestToken{}, err
	}
	f.cache[key] = token
	return token, nil
}

func (f *RestTokenFetcher) mintRestToken(ctx context.Context, req RestTokenRequest) (RestToken, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return RestToken{}, fmt.Errorf("protocol: marshal REST token request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.tokenURL, bytes.NewReader(body))
	if err != nil {
		return RestToken{}, fmt.Errorf("protocol: build REST token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("apikey", f.apiKey)

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return RestToken{}, fmt.Errorf("protocol: request %s: %w", f.tokenURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return RestToken{}, fmt.Errorf("protocol: read response body from %s: %w", f.tokenURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return RestToken{}, &dsherr.HTTPStatusError{URL: f.tokenURL, Status: resp.StatusCode, Body: string(respBody)}
	}

	return ParseRestToken(string(bytes.TrimSpace(respBody)))
}

// ClearRestTokens drops every cached REST token.
func (f *RestTokenFetcher) ClearRestTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[restCacheKey]RestToken)
}
