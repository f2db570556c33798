package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-provider-link/core"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "provider-link.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestViperLoader_ReadsFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
cluestr_app_id: fileApp
cluestr_app_secret: fileSecret
connect_url: http://localhost:1337/init/connect
temp_token_ttl: 5m
`)
	t.Setenv("PROVIDER_LINK_CLUESTR_APP_ID", "envApp")
	t.Setenv("PROVIDER_LINK_HOOK_TIMEOUT", "2s")

	raw, err := NewViperLoader(WithConfigFile(path)).LoadRaw(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "envApp", raw["cluestr_app_id"])
	assert.Equal(t, "fileSecret", raw["cluestr_app_secret"])
	assert.Equal(t, 5*time.Minute, raw["temp_token_ttl"])
	assert.Equal(t, 2*time.Second, raw["hook_timeout"])
	assert.NotContains(t, raw, "connect_path")
}

func TestViperLoader_FeedsCfgxProvider(t *testing.T) {
	path := writeConfig(t, `
cluestr_app_id: appId
cluestr_app_secret: appSecret
connect_url: http://localhost:1337/init/connect
callback_path: /link/callback
temp_token_ttl: 90s
`)
	provider := core.NewCfgxConfigProvider(NewViperLoader(WithConfigFile(path)))

	cfg, err := provider.Load(context.Background(), core.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "appId", cfg.CluestrAppID)
	assert.Equal(t, "/link/callback", cfg.CallbackPath)
	assert.Equal(t, core.DefaultConnectPath, cfg.ConnectPath)
	assert.Equal(t, 90*time.Second, cfg.TempTokenTTL)
	assert.Equal(t, core.DefaultHookTimeout, cfg.HookTimeout)
}

func TestViperLoader_CustomPrefixAndSharedViper(t *testing.T) {
	v := viper.New()
	v.Set("connect_path", "/start")
	t.Setenv("LINKER_CONNECT_URL", "https://example.org/connect")

	loader := NewViperLoader(WithViper(v), WithEnvPrefix("LINKER"))
	raw, err := loader.LoadRaw(context.Background())
	require.NoError(t, err)

	assert.Same(t, v, loader.Viper())
	assert.Equal(t, "/start", raw["connect_path"])
	assert.Equal(t, "https://example.org/connect", raw["connect_url"])
}

func TestViperLoader_Errors(t *testing.T) {
	_, err := NewViperLoader(WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))).LoadRaw(context.Background())
	assert.Error(t, err)

	t.Setenv("PROVIDER_LINK_TEMP_TOKEN_TTL", "soon")
	_, err = NewViperLoader().LoadRaw(context.Background())
	assert.ErrorContains(t, err, "temp_token_ttl")
}
