// Package management fetches and caches the OAuth2 client-credentials
// access token used to call the platform's management API.
package management

import (
	"errors"
	"fmt"
	"time"
)

// safetyMargin is the minimum remaining lifetime a cached token must have
// to be returned without a refresh, per spec §3.
const safetyMargin = 5 * time.Second

// ErrMissingClientID is returned by Builder.Build when neither an explicit
// client ID nor (platform, tenant) were supplied to derive one.
var ErrMissingClientID = errors.New("management: client id is required (set explicitly or derive from platform+tenant)")

// ErrMissingClientSecret is returned by Builder.Build when no client secret
// was supplied.
var ErrMissingClientSecret = errors.New("management: client secret is required")

// AccessToken is the parsed management-API OAuth2 response, stamped with
// its local fetch time for expiry bookkeeping.
type AccessToken struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	NotBeforePolicy  int64  `json:"not-before-policy"`
	Scope            string `json:"scope"`

	FetchedAt time.Time `json:"-"`
}

// IsValid reports whether the token has more than safetyMargin of life left
// at t0.
func (t AccessToken) IsValid(t0 time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	expiry := t.FetchedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
	return t0.Add(safetyMargin).Before(expiry)
}

// String renders the token in Authorization-header form: "{token_type}
// {access_token}".
func (t AccessToken) String() string {
	return fmt.Sprintf("%s %s", t.TokenType, t.AccessToken)
}
