package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()
	v := New()
	v.Set(KeyDataDir, dataDir)

	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, "http://localhost:8080", cfg.Sync.ServerURL)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 500, cfg.Sync.PullLimit)
	assert.Equal(t, 100, cfg.Sync.PushBatchSize)
	assert.Equal(t, 30*time.Second, cfg.Sync.RequestTimeout)
	assert.Equal(t, filepath.Join(dataDir, "chatsync.db"), cfg.Sync.DB)

	assert.Equal(t, ":7946", cfg.Swarm.Listen)
	assert.Equal(t, 2*time.Minute, cfg.Swarm.PeerTTL)
	assert.True(t, cfg.Swarm.MDNS)
	assert.False(t, cfg.Swarm.Enabled)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, ":2112", cfg.Server.MetricsListen)
	assert.Equal(t, 120, cfg.Server.RateLimit)
	assert.Equal(t, filepath.Join(dataDir, "chatsync-server.db"), cfg.Server.DB)

	assert.Equal(t, "info", cfg.Logger().Level)
}

func TestLoad_FileInDataDir(t *testing.T) {
	dataDir := t.TempDir()
	yaml := `
device_name: work laptop
sync:
  server_url: https://sync.example.com
  interval: 90s
  pull_limit: 50
swarm:
  enabled: true
  peers:
    - 192.168.1.10:7946
    - 192.168.1.11:7946
log:
  level: debug
  file: logs/agent.log
`
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "chatsync.yaml"), []byte(yaml), 0o600))

	v := New()
	v.Set(KeyDataDir, dataDir)

	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, "work laptop", cfg.DeviceName)
	assert.Equal(t, "https://sync.example.com", cfg.Sync.ServerURL)
	assert.Equal(t, 90*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 50, cfg.Sync.PullLimit)
	assert.True(t, cfg.Swarm.Enabled)
	assert.Equal(t, []string{"192.168.1.10:7946", "192.168.1.11:7946"}, cfg.Swarm.Peers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, filepath.Join(dataDir, "logs", "agent.log"), cfg.Log.File)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dataDir := t.TempDir()
	file := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte("sync:\n  pull_limit: 50\n"), 0o600))

	t.Setenv("CHATSYNC_DATA_DIR", dataDir)
	t.Setenv("CHATSYNC_SYNC_PULL_LIMIT", "75")
	t.Setenv("CHATSYNC_SWARM_PEER_TTL", "30s")

	cfg, err := Load(New(), file)
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, 75, cfg.Sync.PullLimit)
	assert.Equal(t, 30*time.Second, cfg.Swarm.PeerTTL)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	v := New()
	v.Set(KeyDataDir, t.TempDir())

	_, err := Load(v, filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		msg   string
	}{
		{name: "pull limit", key: KeyPullLimit, value: 0, msg: "sync.pull_limit"},
		{name: "push batch", key: KeyPushBatchSize, value: -1, msg: "sync.push_batch_size"},
		{name: "interval", key: KeySyncInterval, value: -time.Second, msg: "sync.interval"},
		{name: "peer ttl", key: KeyPeerTTL, value: time.Duration(0), msg: "swarm.peer_ttl"},
		{name: "rate limit", key: KeyServerRateLimit, value: -5, msg: "server.rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Set(KeyDataDir, t.TempDir())
			v.Set(tt.key, tt.value)

			_, err := Load(v, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestResolve(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/chatsync"}

	assert.Equal(t, "/var/lib/chatsync/a.db", cfg.resolve("a.db"))
	assert.Equal(t, "/srv/b.db", cfg.resolve("/srv/b.db"))
	assert.Equal(t, ":memory:", cfg.resolve(":memory:"))
	assert.Equal(t, "", cfg.resolve(""))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x.db"), cfg.resolve("~/x.db"))
}
