package protocol_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassflow/dsh-go-sdk/protocol"
)

func dataAccessServers(t *testing.T) (restSrv, dataSrv *httptest.Server, restCalls, dataCalls *int32) {
	t.Helper()
	restCalls = new(int32)
	dataCalls = new(int32)

	dataSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(dataCalls, 1)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		exp := time.Now().Add(time.Hour).Unix()
		fmt.Fprint(w, makeJWT(fmt.Sprintf(`{"gen":"1","endpoint":"e.example.com","client_id":"c1","tenant_id":"t","exp":%d}`, exp)))
	}))

	restSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(restCalls, 1)
		exp := time.Now().Add(time.Hour).Unix()
		// The data-access mint URL is built from this endpoint; supplying
		// dataSrv's own base URL (scheme included) routes the mint call to
		// the plain-HTTP mock instead of assuming TLS.
		fmt.Fprint(w, makeJWT(fmt.Sprintf(`{"gen":"1","endpoint":%q,"tenant_id":"t","exp":%d,"claims":{}}`, dataSrv.URL, exp)))
	}))

	return restSrv, dataSrv, restCalls, dataCalls
}

// TestFetchDataAccessTokenExpiryInsensitiveCache covers scenario S5: two
// requests differing only in Exp collapse onto one upstream POST.
func TestFetchDataAccessTokenExpiryInsensitiveCache(t *testing.T) {
	restSrv, dataSrv, _, dataCalls := dataAccessServers(t)
	defer restSrv.Close()
	defer dataSrv.Close()

	restFetcher := protocol.NewRestTokenFetcher(restSrv.URL, "key", restSrv.Client())
	fetcher := protocol.NewDataAccessTokenFetcher(restFetcher, dataSrv.Client())

	exp1 := time.Now().Add(time.Hour).Unix()
	exp2 := exp1 + 60

	req1 := protocol.RequestDataAccessToken{Tenant: "t", ID: "client-1", Exp: &exp1}
	req2 := protocol.RequestDataAccessToken{Tenant: "t", ID: "client-1", Exp: &exp2}

	_, err := fetcher.FetchDataAccessToken(context.Background(), req1)
	require.NoError(t, err)

	_, err = fetcher.FetchDataAccessToken(context.Background(), req2)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(dataCalls))
}

func TestFetchDataAccessTokenInvalidClientID(t *testing.T) {
	restFetcher := protocol.NewRestTokenFetcher("http://unused", "key", nil)
	fetcher := protocol.NewDataAccessTokenFetcher(restFetcher, nil)

	_, err := fetcher.FetchDataAccessToken(context.Background(), protocol.RequestDataAccessToken{Tenant: "t", ID: "bad id!"})
	require.ErrorIs(t, err, protocol.ErrInvalidClientID)
}

func TestClearAll(t *testing.T) {
	restFetcher := protocol.NewRestTokenFetcher("http://unused", "key", nil)
	fetcher := protocol.NewDataAccessTokenFetcher(restFetcher, nil)
	fetcher.ClearAll()
}
