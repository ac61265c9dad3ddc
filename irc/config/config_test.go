package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "outlauth", cfg.Server.Name)
	assert.Equal(t, 6667, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:6667", cfg.GetListenAddress())
	assert.Equal(t, time.Minute, cfg.Keepalive.Interval.Std())
	assert.Equal(t, 3*time.Minute, cfg.Keepalive.PingAfter.Std())
	assert.Equal(t, 4*time.Minute, cfg.Keepalive.Timeout.Std())
	assert.False(t, cfg.Channels.ReapEmpty)
	assert.Equal(t, []string{"This is the message of the day."}, cfg.Server.MOTD)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "ircd.yaml", `
server:
  name: irc.corp.local
  port: 6697
  motd:
    - line one
    - line two
keepalive:
  interval: 10s
  ping_after: 90
  timeout: 2m
channels:
  reap_empty: true
  auto_join:
    - group: grim sleepers
      channel: "#grimsleepers"
http:
  enabled: true
  port: 9090
  bearer_tokens: [abc]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "irc.corp.local", cfg.Server.Name)
	assert.Equal(t, 6697, cfg.Server.Port)
	assert.Equal(t, []string{"line one", "line two"}, cfg.Server.MOTD)
	assert.Equal(t, 10*time.Second, cfg.Keepalive.Interval.Std())
	assert.Equal(t, 90*time.Second, cfg.Keepalive.PingAfter.Std())
	assert.Equal(t, 2*time.Minute, cfg.Keepalive.Timeout.Std())
	assert.True(t, cfg.Channels.ReapEmpty)
	require.Len(t, cfg.Channels.AutoJoin, 1)
	assert.Equal(t, "#grimsleepers", cfg.Channels.AutoJoin[0].Channel)
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, "127.0.0.1:9090", cfg.GetHTTPListenAddress())
	assert.Equal(t, []string{"abc"}, cfg.HTTP.BearerTokens)
	assert.Equal(t, path, cfg.Source)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "ircd.toml", `
[server]
name = "toml.local"

[keepalive]
ping_after = "30s"
timeout = "45s"

[[channels.auto_join]]
group = "ops"
channel = "#ops"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "toml.local", cfg.Server.Name)
	assert.Equal(t, 30*time.Second, cfg.Keepalive.PingAfter.Std())
	assert.Equal(t, 45*time.Second, cfg.Keepalive.Timeout.Std())
	assert.Equal(t, []string{"#ops"}, cfg.AutoJoinChannels([]string{"ops"}))
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "ircd.json", `{"server": {"name": "json.local", "port": 7000}, "log": {"format": "json"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "json.local", cfg.Server.Name)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("server:\n  name: remote.local\n"))
	}))
	defer srv.Close()

	cfg, err := Load(srv.URL + "/ircd.yaml")
	require.NoError(t, err)
	assert.Equal(t, "remote.local", cfg.Server.Name)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IRCD_SERVER_NAME", "env.local")
	t.Setenv("IRCD_PORT", "7777")
	t.Setenv("IRCD_KEEPALIVE_TIMEOUT", "10m")
	t.Setenv("IRCD_CHANNELS_REAP_EMPTY", "true")
	t.Setenv("IRCD_HTTP_TOKENS", "one,two")
	t.Setenv("IRCD_MOTD", "hello|world")

	path := writeFile(t, "ircd.yaml", "server:\n  name: file.local\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env.local", cfg.Server.Name)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, 10*time.Minute, cfg.Keepalive.Timeout.Std())
	assert.True(t, cfg.Channels.ReapEmpty)
	assert.Equal(t, []string{"one", "two"}, cfg.HTTP.BearerTokens)
	assert.Equal(t, []string{"hello", "world"}, cfg.Server.MOTD)
}

func TestValidation(t *testing.T) {
	tests := map[string]string{
		"timeout before ping":  "keepalive:\n  ping_after: 5m\n  timeout: 1m\n",
		"bad port":             "server:\n  port: 70000\n",
		"bad log level":        "log:\n  level: loud\n",
		"auto join no hash":    "channels:\n  auto_join:\n    - group: ops\n      channel: ops\n",
		"zero send queue":      "limits:\n  send_queue: 0\n",
		"unparseable duration": "keepalive:\n  interval: soon\n",
		"zero connect timeout": "identity:\n  connect_timeout: 0s\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "ircd.yaml", content))
			assert.Error(t, err)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestReload(t *testing.T) {
	path := writeFile(t, "ircd.yaml", "server:\n  name: before.local\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  name: after.local\n"), 0o600))
	require.NoError(t, cfg.Reload(""))
	assert.Equal(t, "after.local", cfg.Server.Name)

	// A broken file leaves the current values in place
	require.NoError(t, os.WriteFile(path, []byte("server: [\n"), 0o600))
	assert.Error(t, cfg.Reload(""))
	assert.Equal(t, "after.local", cfg.Server.Name)
}

func TestAutoJoinChannels(t *testing.T) {
	cfg := Default()
	cfg.Channels.AutoJoin = []AutoJoin{
		{Group: "grim sleepers", Channel: "#grimsleepers"},
		{Group: "ops", Channel: "#ops"},
		{Group: "admins", Channel: "#ops"},
	}

	assert.Equal(t, []string{"#grimsleepers"}, cfg.AutoJoinChannels([]string{"grim sleepers"}))
	assert.Equal(t, []string{"#ops"}, cfg.AutoJoinChannels([]string{"admins", "ops"}))
	assert.Empty(t, cfg.AutoJoinChannels(nil))
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("later")))
}
