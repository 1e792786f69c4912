package protocol_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassflow/dsh-go-sdk/protocol"
)

func restTokenServer(t *testing.T, expiresIn time.Duration) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "test-api-key", r.Header.Get("apikey"))
		exp := time.Now().Add(expiresIn).Unix()
		fmt.Fprint(w, makeJWT(fmt.Sprintf(`{"gen":"1","endpoint":"e.example.com","tenant_id":"t","exp":%d,"claims":{}}`, exp)))
	}))
	return srv, &calls
}

// TestFetchRestTokenCacheHit covers scenario S4: two calls against a mock
// issuing exp=now+3600 result in exactly one upstream POST, and both calls
// observe the same raw token.
func TestFetchRestTokenCacheHit(t *testing.T) {
	srv, calls := restTokenServer(t, time.Hour)
	defer srv.Close()

	fetcher := protocol.NewRestTokenFetcher(srv.URL, "test-api-key", srv.Client())

	first, err := fetcher.FetchRestToken(context.Background(), protocol.RestTokenRequest{Tenant: "t"})
	require.NoError(t, err)

	second, err := fetcher.FetchRestToken(context.Background(), protocol.RestTokenRequest{Tenant: "t"})
	require.NoError(t, err)

	assert.Equal(t, first.Raw, second.Raw)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

// TestFetchRestTokenStampedeSuppression covers spec §8 invariant #3: many
// concurrent callers against a cold cache collapse onto one upstream POST.
func TestFetchRestTokenStampedeSuppression(t *testing.T) {
	srv, calls := restTokenServer(t, time.Hour)
	defer srv.Close()

	fetcher := protocol.NewRestTokenFetcher(srv.URL, "test-api-key", srv.Client())

	const n = 20
	var wg sync.WaitGroup
	tokens := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := fetcher.FetchRestToken(context.Background(), protocol.RestTokenRequest{Tenant: "t"})
			require.NoError(t, err)
			tokens[i] = tok.Raw
		}(i)
	}
	wg.Wait()

	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestFetchRestTokenRefreshesExpired(t *testing.T) {
	srv, calls := restTokenServer(t, 1*time.Second)
	defer srv.Close()

	fetcher := protocol.NewRestTokenFetcher(srv.URL, "test-api-key", srv.Client())

	_, err := fetcher.FetchRestToken(context.Background(), protocol.RestTokenRequest{Tenant: "t"})
	require.NoError(t, err)

	time.Sleep(2 * time.Second)

	_, err = fetcher.FetchRestToken(context.Background(), protocol.RestTokenRequest{Tenant: "t"})
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestClearRestTokens(t *testing.T) {
	srv, calls := restTokenServer(t, time.Hour)
	defer srv.Close()

	fetcher := protocol.NewRestTokenFetcher(srv.URL, "test-api-key", srv.Client())

	_, err := fetcher.FetchRestToken(context.Background(), protocol.RestTokenRequest{Tenant: "t"})
	require.NoError(t, err)

	fetcher.ClearRestTokens()

	_, err = fetcher.FetchRestToken(context.Background(), protocol.RestTokenRequest{Tenant: "t"})
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}
