package datastream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/glassflow/dsh-go-sdk/dsherr"
)

// localDatastreamFile is read from the current working directory when the
// SDK cannot bootstrap an mTLS identity (off-platform, no PKI directory).
const localDatastreamFile = "local_datastreams.json"

// Fetcher retrieves a tenant's Datastream descriptor over an mTLS-configured
// HTTP client.
type Fetcher struct {
	httpClient *http.Client
	configHost string
}

// NewFetcher builds a Fetcher against configHost using httpClient, which is
// expected to already carry the tenant's mTLS identity (see
// certificates.Store.HTTPClientConfig).
func NewFetcher(configHost string, httpClient *http.Client) *Fetcher {
	return &Fetcher{httpClient: httpClient, configHost: configHost}
}

// Fetch retrieves the tenant's datastream descriptor from
// GET {config_host}/kafka/config/{tenant}/{task_id}. A transient transport
// error (connection refused, timeout, ...) is retried once; a non-2xx
// response is not retried, per spec §4.5.
func (f *Fetcher) Fetch(ctx context.Context, tenant, taskID string) (Datastream, error) {
	url := fmt.Sprintf("%s/kafka/config/%s/%s", f.configHost, tenant, taskID)

	body, err := f.getWithRetry(ctx, url)
	if err != nil {
		return Datastream{}, err
	}

	var ds Datastream
	if err := json.Unmarshal(body, &ds); err != nil {
		return Datastream{}, fmt.Errorf("datastream: parse response from %s: %w", url, err)
	}
	return ds, nil
}

// getWithRetry performs the GET, retrying once on a transport error only; a
// successfully received non-2xx response is returned as a non-retryable
// *dsherr.HTTPStatusError via retry.Unrecoverable.
func (f *Fetcher) getWithRetry(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("datastream: build request: %w", err))
			}

			resp, err := f.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("datastream: request %s: %w", url, err)
			}
			defer resp.Body.Close()

			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("datastream: read response body from %s: %w", url, err)
			}

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return retry.Unrecoverable(&dsherr.HTTPStatusError{URL: url, Status: resp.StatusCode, Body: string(respBody)})
			}

			body = respBody
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.LastErrorOnly(true),
		retry.Delay(200*time.Millisecond),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// LoadLocalFile reads a Datastream descriptor from a JSON file on disk, for
// off-platform deployments with no reachable config host.
func LoadLocalFile(path string) (Datastream, error) {
	if path == "" {
		path = localDatastreamFile
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Datastream{}, fmt.Errorf("datastream: read local file %s: %w", path, err)
	}

	var ds Datastream
	if err := json.Unmarshal(raw, &ds); err != nil {
		return Datastream{}, fmt.Errorf("datastream: parse local file %s: %w", path, err)
	}
	return ds, nil
}
