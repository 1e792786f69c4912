package platform_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassflow/dsh-go-sdk/platform"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		want platform.Platform
	}{
		{"prod", platform.Prod},
		{"prod-az", platform.ProdAz},
		{"prod-lz", platform.ProdLz},
		{"np-lz", platform.NpLz},
		{"poc", platform.Poc},
	}

	for _, tc := range cases {
		got, err := platform.Parse(tc.name)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.name, got.String())
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := platform.Parse("staging")
	require.Error(t, err)
}

func TestEndpointsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range []platform.Platform{platform.Prod, platform.ProdAz, platform.ProdLz, platform.NpLz, platform.Poc} {
		e, err := p.Endpoints()
		require.NoError(t, err)
		require.NotEmpty(t, e.Realm)
		require.NotEmpty(t, e.ManagementTokenURL)
		require.NotEmpty(t, e.ProtocolRestTokenURL)
		require.NotEmpty(t, e.MQTTTokenURL)
		assert.False(t, seen[e.Realm], "realm %q reused across platforms", e.Realm)
		seen[e.Realm] = true
	}
}
