package protocol_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassflow/dsh-go-sdk/protocol"
)

func TestParseRestToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	payload := fmt.Sprintf(`{"gen":"1","endpoint":"e.example.com","iss":"platform","exp":%d,"tenant_id":"t1","claims":{}}`, exp)
	raw := makeJWT(payload)

	token, err := protocol.ParseRestToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "t1", token.TenantID)
	assert.Equal(t, "e.example.com", token.Endpoint)
	assert.True(t, token.IsValid(time.Now()))
}

func TestRestTokenIsValidRequiresMargin(t *testing.T) {
	token := protocol.RestToken{Raw: "raw", Exp: time.Now().Add(2 * time.Second).Unix()}
	assert.False(t, token.IsValid(time.Now()))
}

func TestRestTokenIsValidRequiresRaw(t *testing.T) {
	token := protocol.RestToken{Exp: time.Now().Add(time.Hour).Unix()}
	assert.False(t, token.IsValid(time.Now()))
}

func TestParseDataAccessToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	payload := fmt.Sprintf(`{"gen":"1","endpoint":"e.example.com","ports":{"mqtts":[8883],"mqttwss":[443]},"iss":"platform","exp":%d,"client_id":"c1","tenant_id":"t1","claims":[{"action":"publish","resource":{"type":"topic","topic":"a.b.c"}}]}`, exp)
	raw := makeJWT(payload)

	token, err := protocol.ParseDataAccessToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "c1", token.ClientID)
	require.Len(t, token.Claims, 1)
	assert.Equal(t, protocol.ActionPublish, token.Claims[0].Action)
	assert.Equal(t, []uint16{8883}, token.Ports.Mqtts)
}

func TestValidateClientID(t *testing.T) {
	require.NoError(t, protocol.ValidateClientID("robot:realm:tenant.id_01@x"))

	err := protocol.ValidateClientID(strings.Repeat("a", 65))
	require.ErrorIs(t, err, protocol.ErrInvalidClientID)

	err = protocol.ValidateClientID("")
	require.ErrorIs(t, err, protocol.ErrInvalidClientID)

	err = protocol.ValidateClientID("has space")
	require.ErrorIs(t, err, protocol.ErrInvalidClientID)
}
