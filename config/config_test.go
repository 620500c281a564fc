package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileFlags replays a config_file path through a pflag set the same way the
// CLI entrypoint does.
func fileFlags(t *testing.T, path string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config_file", "", "path to the configuration file")
	if path != "" {
		require.NoError(t, flags.Set("config_file", path))
	}
	return flags
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "im.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("IM_AUTH_SECRET", "test-secret")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "im-server", cfg.Service.Name)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "im.events", cfg.Broker.Exchange)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 2048, cfg.Session.MailboxSize)
	assert.Equal(t, 120*time.Second, cfg.Session.ZombieAfter)
	assert.Equal(t, 300*time.Second, cfg.Session.ExpireAfter)
	assert.Equal(t, 4096, cfg.Delivery.MaxPayloadBytes)
	assert.Equal(t, time.Hour, cfg.Presence.MarkerTTL)
	assert.Equal(t, 10*time.Minute, cfg.Offline.DedupWindow)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Auth.RequireVerification)
	assert.Empty(t, cfg.ConfigFile())
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("IM_AUTH_SECRET", "test-secret")
	t.Setenv("IM_HTTP_ADDR", ":9090")
	t.Setenv("IM_SESSION_MAILBOX_SIZE", "4096")
	t.Setenv("IM_PRESENCE_MARKER_TTL", "2h")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 4096, cfg.Session.MailboxSize)
	assert.Equal(t, 2*time.Hour, cfg.Presence.MarkerTTL)
}

func TestConfigFileLoaded(t *testing.T) {
	path := writeConfig(t, `
service:
  name: custom-im
auth:
  secret: file-secret
  token_ttl: 1h
`)

	cfg, err := LoadConfig(fileFlags(t, path))
	require.NoError(t, err)

	assert.Equal(t, "custom-im", cfg.Service.Name)
	assert.Equal(t, "file-secret", cfg.Auth.Secret)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, path, cfg.ConfigFile())
	// Untouched keys keep their defaults.
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestEnvBeatsFile(t *testing.T) {
	t.Setenv("IM_SERVICE_NAME", "env-name")
	path := writeConfig(t, `
service:
  name: file-name
auth:
  secret: file-secret
`)

	cfg, err := LoadConfig(fileFlags(t, path))
	require.NoError(t, err)
	assert.Equal(t, "env-name", cfg.Service.Name)
}

func TestMissingFileFails(t *testing.T) {
	t.Setenv("IM_AUTH_SECRET", "test-secret")

	_, err := LoadConfig(fileFlags(t, filepath.Join(t.TempDir(), "absent.yaml")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestSecretRequired(t *testing.T) {
	_, err := LoadConfig(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.secret")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{
			Auth: AuthConfig{Secret: "s"},
			Session: SessionConfig{
				SweepInterval: time.Minute,
				ZombieAfter:   2 * time.Minute,
				ExpireAfter:   5 * time.Minute,
			},
			Presence: PresenceConfig{MarkerTTL: time.Hour},
			Log:      LogConfig{Format: "json"},
		}
	}

	require.NoError(t, valid().Validate())

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.Auth.Secret = "" },
			wantSub: "auth.secret",
		},
		{
			name:    "zombie at or above expiry",
			mutate:  func(c *Config) { c.Session.ZombieAfter = c.Session.ExpireAfter },
			wantSub: "zombie_after",
		},
		{
			name:    "marker below sweep interval",
			mutate:  func(c *Config) { c.Presence.MarkerTTL = time.Second },
			wantSub: "marker_ttl",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantSub: "log.format",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantSub)
		})
	}
}

func TestStoreSwapNotifiesListeners(t *testing.T) {
	t.Parallel()

	first := &Config{Service: ServiceConfig{Name: "one"}}
	second := &Config{Service: ServiceConfig{Name: "two"}}

	store := NewStore(first)
	require.Same(t, first, store.Current())

	var seen []*Config
	store.OnSwap(func(c *Config) { seen = append(seen, c) })

	store.swap(second)
	require.Same(t, second, store.Current())
	require.Len(t, seen, 1)
	assert.Same(t, second, seen[0])
}

func TestStoreWatchReload(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
service:
  name: one
auth:
  secret: watch-secret
`)
	flags := fileFlags(t, path)
	cfg, err := LoadConfig(flags)
	require.NoError(t, err)
	require.Equal(t, "one", cfg.Service.Name)

	store := NewStore(cfg)
	swapped := make(chan *Config, 4)
	store.OnSwap(func(c *Config) { swapped <- c })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store.Watch(path, flags, log)

	// An edit that fails validation must not replace the snapshot.
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  name: broken
auth:
  secret: watch-secret
log:
  format: xml
`), 0o600))
	assert.Never(t, func() bool {
		return store.Current().Service.Name != "one"
	}, 700*time.Millisecond, 50*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`
service:
  name: two
auth:
  secret: watch-secret
`), 0o600))
	require.Eventually(t, func() bool {
		return store.Current().Service.Name == "two"
	}, 3*time.Second, 50*time.Millisecond)

	select {
	case c := <-swapped:
		assert.Equal(t, "two", c.Service.Name)
	case <-time.After(time.Second):
		t.Fatal("listener was not notified of the swap")
	}
}
