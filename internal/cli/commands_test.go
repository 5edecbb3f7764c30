package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/csfam/pawprint/internal/pawprint/config"
	"github.com/csfam/pawprint/internal/pawprint/rpcclient/rpctest"
	"github.com/csfam/pawprint/internal/pawprint/server"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pawprint.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, server.Version)

	out, err = runCommand(t, "version", "-j")
	require.NoError(t, err)
	assert.Equal(t, server.APIVersion, gjson.Get(out, "apiVersion").String())
}

func TestCheckCommand(t *testing.T) {
	srv := rpctest.NewServer("alice", "secret")
	defer srv.Close()

	out, err := runCommand(t, "check", "--url", srv.URL, "--username", "alice", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "as alice")

	out, err = runCommand(t, "check", "-j", "--url", srv.URL, "--username", "alice", "--password", "wrong")
	assert.ErrorIs(t, err, ErrAlreadyHandled)
	assert.False(t, gjson.Get(out, "success").Bool())
	assert.Equal(t, int64(337), gjson.Get(out, "errcode").Int())

	out, err = runCommand(t, "check", "--url", srv.URL, "--username", "alice")
	assert.ErrorIs(t, err, ErrAlreadyHandled)
	assert.Contains(t, out, "[307]")
}

func TestCheckCommandUsesConfiguredCodes(t *testing.T) {
	srv := rpctest.NewServer("alice", "secret")
	defer srv.Close()
	path := writeConfig(t, `format_version = "0.1.0"

[error_codes]
authentication_failed = 401
`)

	out, err := runCommand(t, "check", "-j", "--config", path, "--url", srv.URL, "--username", "alice", "--password", "nope")
	assert.ErrorIs(t, err, ErrAlreadyHandled)
	assert.Equal(t, int64(401), gjson.Get(out, "errcode").Int())
}

func TestSessionsPurgeCommand(t *testing.T) {
	path := writeConfig(t, `format_version = "0.1.0"`)

	out, err := runCommand(t, "sessions", "purge", "-j", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gjson.Get(out, "purged").Int())
}

func TestSessionsKeygenCommand(t *testing.T) {
	out, err := runCommand(t, "sessions", "keygen", "-j")
	require.NoError(t, err)
	key := gjson.Get(out, "secret_key").String()
	require.NotEmpty(t, key)

	cfg := config.Default()
	cfg.Storage.Backend = config.BackendPostgres
	cfg.Storage.Postgres.DSN = "postgres://localhost/pawprint"
	cfg.Storage.Postgres.SecretKey = key
	assert.NoError(t, config.ValidateConfig(cfg))
}

func TestMigrateRequiresPostgres(t *testing.T) {
	path := writeConfig(t, `format_version = "0.1.0"`)

	_, err := runCommand(t, "migrate", "up", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := runCommand(t, "serve", "--config", filepath.Join(t.TempDir(), "absent.conf"))
	assert.Error(t, err)
}

func TestRunServerStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.ServerHostName = "127.0.0.1"
	cfg.ServerPort = "0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownGrace + time.Second):
		t.Fatal("server did not stop")
	}
}
