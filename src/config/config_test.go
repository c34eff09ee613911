package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks the aliased variables; viper ignores empty values.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envAliases {
		t.Setenv(name, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewConfig("")
	require.NoError(t, err)
	assert.Equal(t, "tw-tick-api", cfg.Name)
	assert.Equal(t, 8000, cfg.Port)
	assert.False(t, cfg.Debug)
	assert.True(t, cfg.DefaultConvertFormats)
	assert.Equal(t, []string{"*"}, cfg.CorsOrigins)
	assert.Equal(t, []string{SourceTickAPI}, cfg.DataSource.Sources)
	assert.Equal(t, 30, cfg.WebSocket.HeartbeatInterval)
	assert.Equal(t, "2020-03-02", cfg.Limits.MinDate)
	assert.Equal(t, 60, cfg.Limits.RestRequestsPerWindow)
	assert.Equal(t, 10, cfg.Limits.MaxWSConnectionsPerIP)
	assert.Equal(t, 366, cfg.Limits.MaxRangeDays)
	assert.Empty(t, cfg.TickAPI.APIKey)
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9001")
	t.Setenv("WS_HEARTBEAT_INTERVAL", "5")
	t.Setenv("TW_STOCK_API_HOST", "10.0.0.2")
	t.Setenv("TW_STOCK_API_KEY", "secret")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("DATA_SOURCE_SOURCES", "sqlite,tick_api")
	t.Setenv("LIMITS_MAX_WS_CONNECTIONS_PER_IP", "3")

	cfg, err := NewConfig("")
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, 5, cfg.WebSocket.HeartbeatInterval)
	assert.Equal(t, "10.0.0.2", cfg.TickAPI.Host)
	assert.Equal(t, "secret", cfg.TickAPI.APIKey)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CorsOrigins)
	assert.Equal(t, []string{SourceSQLite, SourceTickAPI}, cfg.DataSource.Sources)
	assert.Equal(t, 3, cfg.Limits.MaxWSConnectionsPerIP)
}

func TestValidateRejects(t *testing.T) {
	clearEnv(t)

	cases := map[string]func(c *Config){
		"port":            func(c *Config) { c.Port = 0 },
		"no sources":      func(c *Config) { c.DataSource.Sources = nil },
		"unknown source":  func(c *Config) { c.DataSource.Sources = []string{"csv"} },
		"postgres dsn":    func(c *Config) { c.DataSource.Sources = []string{SourcePostgres} },
		"heartbeat":       func(c *Config) { c.WebSocket.HeartbeatInterval = 0 },
		"precision":       func(c *Config) { c.WebSocket.TimePrecision = "nanosecond" },
		"min date":        func(c *Config) { c.Limits.MinDate = "2020/03/02" },
		"inverted limits": func(c *Config) { c.Limits.MaxDate = "2019-01-01" },
		"rate":            func(c *Config) { c.Limits.RestRequestsPerWindow = 0 },
		"ws cap":          func(c *Config) { c.Limits.MaxWSConnectionsPerIP = 0 },
		"range span":      func(c *Config) { c.Limits.MaxRangeDays = 0 },
		"cache addr": func(c *Config) {
			c.Cache.Enabled = true
			c.Cache.RedisAddr = ""
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := NewConfig("")
			require.NoError(t, err)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)

	cfg, err := NewConfig("")
	require.NoError(t, err)
	cfg.Port = 8123
	cfg.Limits.MaxDate = "2023-04-27"
	cfg.DataSource.Sources = []string{SourceSQLite}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8123, loaded.Port)
	assert.Equal(t, "2023-04-27", loaded.Limits.MaxDate)
	assert.Equal(t, []string{SourceSQLite}, loaded.DataSource.Sources)
	assert.Equal(t, cfg.WebSocket, loaded.WebSocket)
}

func TestMissingFile(t *testing.T) {
	clearEnv(t)

	_, err := NewConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
