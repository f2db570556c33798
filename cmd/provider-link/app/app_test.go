package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "provider-link.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const completeConfig = `
cluestr_app_id: appId
cluestr_app_secret: appSecret
connect_url: http://localhost:1337/init/connect
callback_path: /link/callback
`

func TestValidate_AcceptsCompleteConfig(t *testing.T) {
	out, err := execute(t, "validate", "--config", writeConfig(t, completeConfig))
	require.NoError(t, err)
	assert.Contains(t, out, "callback /link/callback")
}

func TestValidate_ReportsMissingParameter(t *testing.T) {
	_, err := execute(t, "validate", "--config", writeConfig(t, "connect_url: http://localhost:1337/init/connect\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluestrAppId")
}

func TestValidate_EnvironmentFillsConfig(t *testing.T) {
	t.Setenv("PROVIDER_LINK_CLUESTR_APP_ID", "envApp")
	t.Setenv("PROVIDER_LINK_CLUESTR_APP_SECRET", "envSecret")
	t.Setenv("PROVIDER_LINK_CONNECT_URL", "http://localhost:1337/init/connect")

	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration ok")
}

func TestValidate_UnknownHookPack(t *testing.T) {
	_, err := execute(t, "validate", "--config", writeConfig(t, completeConfig), "--hooks", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passthrough")
}

func TestMigrateThenPurge(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "link.db") + "?_foreign_keys=on"
	configPath := writeConfig(t, completeConfig)

	out, err := execute(t, "migrate", "--config", configPath, "--db-dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")

	out, err = execute(t, "purge", "--config", configPath, "--db-dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "purged 0 expired temp tokens")
}

func TestPurge_GoJobDispatcherUsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	dsn := "file:" + filepath.Join(t.TempDir(), "link.db") + "?_foreign_keys=on"
	configPath := writeConfig(t, completeConfig)

	_, err := execute(t, "migrate", "--config", configPath, "--db-dsn", dsn)
	require.NoError(t, err)

	out, err := execute(t, "purge", "--config", configPath, "--db-dsn", dsn,
		"--dispatcher", "gojob", "--redis-addr", mr.Addr())
	require.NoError(t, err)
	assert.Contains(t, out, "purged 0 expired temp tokens")
}

func TestPurge_GoJobDispatcherRequiresRedis(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "link.db") + "?_foreign_keys=on"
	_, err := execute(t, "purge", "--config", writeConfig(t, completeConfig), "--db-dsn", dsn, "--dispatcher", "gojob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--redis-addr")
}

func TestPurge_RejectsUnknownDispatcher(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "link.db") + "?_foreign_keys=on"
	_, err := execute(t, "purge", "--config", writeConfig(t, completeConfig), "--db-dsn", dsn, "--dispatcher", "kafka")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dispatcher")
}

func TestParseLevel(t *testing.T) {
	_, err := parseLevel("loud")
	assert.Error(t, err)
	level, err := parseLevel(" warn ")
	require.NoError(t, err)
	assert.Equal(t, "WARN", level.String())
}
