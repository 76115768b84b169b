package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vestchain/crypto"
)

func testAddress(t *testing.T) string {
	t.Helper()
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return crypto.NewAddress(crypto.VestPrefix, raw).String()
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8082", cfg.ListenAddress)
	require.Equal(t, "./vestd-data", cfg.DataDir)
	require.Equal(t, "local", cfg.Env)
	require.Equal(t, "2m", cfg.TimestampSkew)
	require.FileExists(t, path)
}

func TestLoadParsesConfig(t *testing.T) {
	addr := testAddress(t)
	path := writeConfig(t, `
ListenAddress = ":9000"
DataDir = "/var/lib/vestd"
Env = "prod"
TimestampSkew = "90s"

[[APIKeys]]
Key = "ops"
Secret = "topsecret"

[[Genesis]]
Address = "`+addr+`"
Token = "VST"
Amount = 2000000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "prod", cfg.Env)
	require.Len(t, cfg.APIKeys, 1)
	require.Equal(t, "ops", cfg.APIKeys[0].Key)
	require.Len(t, cfg.Genesis, 1)
	require.Equal(t, uint64(2_000_000), cfg.Genesis[0].Amount)

	skew, err := cfg.Skew()
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, skew)
}

func TestLoadAppliesDefaultsToPartialConfig(t *testing.T) {
	path := writeConfig(t, `ListenAddress = ":9000"`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "./vestd-data", cfg.DataDir)
	require.Equal(t, "2m", cfg.TimestampSkew)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	addr := testAddress(t)
	cases := []struct {
		name     string
		contents string
	}{
		{
			name:     "bad skew",
			contents: `TimestampSkew = "soon"`,
		},
		{
			name: "api key without secret",
			contents: `
[[APIKeys]]
Key = "ops"
Secret = ""
`,
		},
		{
			name: "genesis bad address",
			contents: `
[[Genesis]]
Address = "not-bech32"
Token = "VST"
Amount = 1
`,
		},
		{
			name: "genesis bad token",
			contents: `
[[Genesis]]
Address = "` + addr + `"
Token = "vst tokens"
Amount = 1
`,
		},
		{
			name: "genesis zero amount",
			contents: `
[[Genesis]]
Address = "` + addr + `"
Token = "VST"
Amount = 0
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.contents)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
