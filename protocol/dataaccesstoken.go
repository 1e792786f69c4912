package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/glassflow/dsh-go-sdk/dsherr"
)

// dataAccessMintURL builds the data-access token mint URL from a RestToken's
// endpoint field. The platform normally returns a bare host:port, in which
// case https:// is prepended; an endpoint that already carries a scheme
// (used by tests against a plain-HTTP mock) is passed through unchanged.
func dataAccessMintURL(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint + "/datastreams/v0/mqtt/token"
	}
	return fmt.Sprintf("https://%s/datastreams/v0/mqtt/token", endpoint)
}

// DataAccessTokenFetcher mints and caches data-access tokens, depending on a
// RestTokenFetcher to ensure a valid REST token exists before every mint,
// per spec §4.9.
type DataAccessTokenFetcher struct {
	httpClient *http.Client
	restTokens *RestTokenFetcher

	mu    sync.RWMutex
	cache map[string]DataAccessToken
}

// NewDataAccessTokenFetcher builds a DataAccessTokenFetcher. restTokens
// provides the REST token whose endpoint and raw string authenticate the
// data-access mint call.
func NewDataAccessTokenFetcher(restTokens *RestTokenFetcher, httpClient *http.Client) *DataAccessTokenFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &DataAccessTokenFetcher{
		httpClient: httpClient,
		restTokens: restTokens,
		cache:      make(map[string]DataAccessToken),
	}
}

// FetchDataAccessToken returns a cached valid token or mints a new one.
// req.ID must satisfy ValidateClientID; two requests differing only in Exp
// share a cache slot, per spec §8 invariant #4.
func (f *DataAccessTokenFetcher) FetchDataAccessToken(ctx context.Context, req RequestDataAccessToken) (DataAccessToken, error) {
	if err := ValidateClientID(req.ID); err != nil {
		return DataAccessToken{}, err
	}

	key, err := req.cacheKey()
	if err != nil {
		return DataAccessToken{}, err
	}
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

	token, err = f.mintDataAccessToken(ctx, req)
	if err != nil {
		return DataAccessToken{}, err
	}
	f.cache[key] = token
	return token, nil
}

func (f *DataAccessTokenFetcher) mintDataAccessToken(ctx context.Context, req RequestDataAccessToken) (DataAccessToken, error) {
	restToken, err := f.restTokens.FetchRestToken(ctx, RestTokenRequest{
		Tenant:      req.Tenant,
		RequesterID: req.requesterID(),
	})
	if err != nil {
		return DataAccessToken{}, fmt.Errorf("protocol: ensure REST token for data-access mint: %w", err)
	}

	url := dataAccessMintURL(restToken.Endpoint)

	body, err := json.Marshal(req)
	if err != nil {
		return DataAccessToken{}, fmt.Errorf("protocol: marshal data-access token request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return DataAccessToken{}, fmt.Errorf("protocol: build data-access token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+restToken.Raw)

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return DataAccessToken{}, fmt.Errorf("protocol: request %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return DataAccessToken{}, fmt.Errorf("protocol: read response body from %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DataAccessToken{}, &dsherr.HTTPStatusError{URL: url, Status: resp.StatusCode, Body: string(respBody)}
	}

	return ParseDataAccessToken(string(bytes.TrimSpace(respBody)))
}

// ClearDataAccessTokens drops every cached data-access token.
func (f *DataAccessTokenFetcher) ClearDataAccessTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[string]DataAccessToken)
}

// ClearAll drops both the data-access and (via the REST fetcher) REST token
// caches.
func (f *DataAccessTokenFetcher) ClearAll() {
	f.ClearDataAccessTokens()
	f.restTokens.ClearRestTokens()
}
