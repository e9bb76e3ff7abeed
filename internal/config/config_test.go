package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(writeConfig(t, "share_root: "+root+"\n"))
	require.NoError(t, err)

	require.Equal(t, root, cfg.ShareRoot)
	require.Equal(t, filepath.Join(root, DefaultStateDirName), cfg.StateDir)
	require.Equal(t, filepath.Join(root, DefaultStateDirName, "archives"), cfg.CacheDir)
	require.ElementsMatch(t, DefaultExcludedNames, cfg.ExcludedNames)
	require.Equal(t, 120*time.Second, cfg.ArchiveTTL())
	require.Equal(t, DefaultMaxFilesPerUpload, cfg.MaxFilesPerUpload)
	require.Equal(t, StoreTypeBadger, cfg.Store.Type)
	require.Equal(t, filepath.Join(cfg.StateDir, "registry"), cfg.Store.Badger["path"])
	require.Equal(t, LogLevelInfo, cfg.Logging.Level)
	require.Equal(t, ProbeMethodTCP, cfg.Probe.Method)
}

func TestLoadExplicitValues(t *testing.T) {
	root := t.TempDir()
	cache := t.TempDir()
	cfg, err := Load(writeConfig(t, `
share_root: `+root+`
cache_dir: `+cache+`
archive_ttl_seconds: 30
max_files_per_upload: 5
logging:
  level: debug
  format: json
server:
  listen: "127.0.0.1:8080"
  shutdown_timeout: 2s
store:
  type: redis
  redis:
    url: "redis://cache:6379/2"
probe:
  method: icmp
  timeout: 250ms
`))
	require.NoError(t, err)

	require.Equal(t, cache, cfg.CacheDir)
	require.Equal(t, 30*time.Second, cfg.ArchiveTTL())
	require.Equal(t, 5, cfg.MaxFilesPerUpload)
	require.Equal(t, LogLevelDebug, cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
	require.Equal(t, 2*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, StoreTypeRedis, cfg.Store.Type)
	require.Equal(t, "redis://cache:6379/2", cfg.Store.Redis["url"])
	require.Equal(t, ProbeMethodICMP, cfg.Probe.Method)
	require.Equal(t, 250*time.Millisecond, cfg.Probe.Timeout)
}

func TestLoadEnvOverride(t *testing.T) {
	root := t.TempDir()
	t.Setenv("NETFSHARE_ARCHIVE_TTL_SECONDS", "45")
	t.Setenv("NETFSHARE_LOGGING_LEVEL", "WARN")

	cfg, err := Load(writeConfig(t, "share_root: "+root+"\narchive_ttl_seconds: 10\n"))
	require.NoError(t, err)
	require.Equal(t, 45*time.Second, cfg.ArchiveTTL())
	require.Equal(t, LogLevelWarn, cfg.Logging.Level)
}

func TestValidation(t *testing.T) {
	root := t.TempDir()

	testCases := []struct {
		name    string
		content string
	}{
		{
			name:    "cache inside a shared directory",
			content: "share_root: " + root + "\ncache_dir: " + filepath.Join(root, "music", "cache") + "\n",
		},
		{
			name:    "state dir is the share root",
			content: "share_root: " + root + "\nstate_dir: " + root + "\n",
		},
		{
			name:    "unknown store type",
			content: "share_root: " + root + "\nstore:\n  type: sqlite\n",
		},
		{
			name:    "bad log level",
			content: "share_root: " + root + "\nlogging:\n  level: trace\n",
		},
		{
			name:    "excluded name with separator",
			content: "share_root: " + root + "\nexcluded_names: [\"a/b\"]\n",
		},
		{
			name:    "negative upload limit",
			content: "share_root: " + root + "\nmax_files_per_upload: -1\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			require.Error(t, err)
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yml")
	require.NoError(t, WriteDefault(path, false))
	require.Error(t, WriteDefault(path, false))
	require.NoError(t, WriteDefault(path, true))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(content, &raw))
	require.Contains(t, raw, "share_root")
	require.Contains(t, raw, "store")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultArchiveTTLSeconds, cfg.ArchiveTTLSeconds)
}
