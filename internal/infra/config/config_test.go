package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
operator:
  token: test-token
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "none", cfg.Quota.Kind)
	assert.Equal(t, 33, cfg.Upvotes.Percent)
	assert.Equal(t, 3, cfg.Upvotes.Min)
	assert.Equal(t, 4, cfg.Poll.Choices)
	assert.Equal(t, 30*time.Second, cfg.PollTimeout())
	assert.Equal(t, time.Duration(0), cfg.DejavuWindow())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
storage:
  driver: sqlite
  path: /tmp/test.db
operator:
  token: test-token
  display_names:
    - DJ
quota:
  kind: songs
  limit: 3
upvotes:
  percent: 50
  min: 2
poll:
  choices: 6
  timeout_sec: 45
playlist:
  dejavu_hours: 12
  auto_sort_likes: true
criteria:
  - name: strict
    active: true
    settings:
      - type: year
        value: "1990"
      - type: longer_than
        value: "600"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Quota.Limit)
	assert.Equal(t, 45*time.Second, cfg.PollTimeout())
	assert.Equal(t, 12*time.Hour, cfg.DejavuWindow())
	assert.True(t, cfg.Playlist.AutoSortLikes)
	require.Len(t, cfg.Criteria, 1)
	assert.True(t, cfg.Criteria[0].Active)
	assert.Len(t, cfg.Criteria[0].Settings, 2)
	assert.True(t, cfg.IsOperatorDisplayName("DJ"))
	assert.False(t, cfg.IsOperatorDisplayName("guest"))
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "missing operator token",
			yaml:   `server: {addr: ":8080"}`,
			errMsg: "Token",
		},
		{
			name: "unknown storage driver",
			yaml: `
operator: {token: t}
storage: {driver: postgres}
`,
			errMsg: "Driver",
		},
		{
			name: "percent above 100",
			yaml: `
operator: {token: t}
upvotes: {percent: 150}
`,
			errMsg: "Percent",
		},
		{
			name: "two active criteria sets",
			yaml: `
operator: {token: t}
criteria:
  - {name: a, active: true}
  - {name: b, active: true}
`,
			errMsg: "at most one criteria set",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KARABOX_OPERATOR_TOKEN", "env-token")
	t.Setenv("KARABOX_ADDR", ":7777")

	path := writeConfig(t, `
server:
  addr: ":8080"
operator:
  token: file-token
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Operator.Token)
	assert.Equal(t, ":7777", cfg.Server.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
