package management

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/glassflow/dsh-go-sdk/dsherr"
)

// Fetcher caches a single management-API access token behind one mutex.
// Go has no Rust-style mutex poisoning, so a panic while the lock is held
// is instead recovered with a deferred recover() that zeroes the cache and
// re-raises as a returned error — the same observable contract (poisoning
// never propagates to callers, the cache comes back clean) via idiomatic Go
// mechanisms, per spec §4.8/§7's "Lock poisoning" kind.
type Fetcher struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string

	mu     sync.Mutex
	cached AccessToken

	// mint defaults to f.mintToken; overridable in tests to simulate a
	// panic mid-refresh without a live HTTP round trip.
	mint func(context.Context) (AccessToken, error)
}

// GetToken returns "{token_type} {access_token}" from the cache if valid,
// else mints a fresh token via the client-credentials grant.
func (f *Fetcher) GetToken(ctx context.Context) (token string, err error) {
	f.mu.Lock()
	defer func() {
		if r := recover(); r != nil {
			f.cached = AccessToken{}
			err = fmt.Errorf("management: recovered from panic while holding token cache lock: %v", r)
		}
		f.mu.Unlock()
	}()

	if f.cached.IsValid(time.Now()) {
		return f.cached.String(), nil
	}

	mint := f.mint
	if mint == nil {
		mint = f.mintToken
	}
	fresh, mintErr := mint(ctx)
	if mintErr != nil {
		return "", mintErr
	}
	f.cached = fresh
	return f.cached.String(), nil
}

func (f *Fetcher) mintToken(ctx context.Context) (AccessToken, error) {
	form := url.Values{
		"client_id":     {f.clientID},
		"client_secret": {f.clientSecret},
		"grant_type":    {"client_credentials"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, fmt.Errorf("management: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return AccessToken{}, fmt.Errorf("management: request %s: %w", f.tokenURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AccessToken{}, fmt.Errorf("management: read response body from %s: %w", f.tokenURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AccessToken{}, &dsherr.HTTPStatusError{URL: f.tokenURL, Status: resp.StatusCode, Body: string(body)}
	}

	var token AccessToken
	if err := json.Unmarshal(body, &token); err != nil {
		return AccessToken{}, fmt.Errorf("management: parse token response from %s: %w", f.tokenURL, err)
	}
	token.FetchedAt = time.Now()
	return token, nil
}
