package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadServer_Defaults(t *testing.T) {
	path := writeTemp(t, "server.yaml", `listen_addr: ":7000"`)
	cfg, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.Equal(t, 5, cfg.DefaultIdleSeconds)
}

func TestLoadServer_Accounts(t *testing.T) {
	path := writeTemp(t, "server.yaml", `
auth:
  accounts:
    alice: secret
    bob: hunter2
`)
	cfg, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Auth.Accounts["alice"])
	assert.Equal(t, "hunter2", cfg.Auth.Accounts["bob"])
}

func TestLoadServer_MissingFile(t *testing.T) {
	_, err := LoadServer(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadWorker_Defaults(t *testing.T) {
	path := writeTemp(t, "worker.yaml", `upstream_addr: "localhost:5327"`)
	cfg, err := LoadWorker(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:5327", cfg.UpstreamAddr)
	assert.Equal(t, 4, cfg.InitialWorkers)
	assert.Equal(t, time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
}

func TestLoadHub_UpstreamsAndDefaults(t *testing.T) {
	path := writeTemp(t, "hub.yaml", `
listen_addr: ":6000"
idle_seconds: 3
upstreams:
  - name: serverA
    addr: "10.0.0.1:5327"
  - name: serverB
    addr: "10.0.0.2:5327"
`)
	cfg, err := LoadHub(path)
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.ListenAddr)
	assert.Equal(t, 3, cfg.IdleSeconds)
	require.Len(t, cfg.Upstreams, 2)
	assert.Equal(t, "serverA", cfg.Upstreams[0].Name)
	assert.Equal(t, "10.0.0.2:5327", cfg.Upstreams[1].Addr)
	assert.Equal(t, time.Second, cfg.ReconnectInterval)
}
