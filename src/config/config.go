package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"tw-tick-api/src/models"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Source names accepted in data_source.sources.
const (
	SourceTickAPI  = "tick_api"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// envAliases maps config keys to the environment names the service has always used.
var envAliases = map[string]string{
	"host":                         "HOST",
	"port":                         "PORT",
	"debug":                        "DEBUG",
	"log_level":                    "LOG_LEVEL",
	"cors_origins":                 "CORS_ORIGINS",
	"default_convert_formats":      "DEFAULT_CONVERT_FORMATS",
	"tick_api.api_key":             "TW_STOCK_API_KEY",
	"tick_api.host":                "TW_STOCK_API_HOST",
	"tick_api.port":                "TW_STOCK_API_PORT",
	"tick_api.data_root":           "TW_STOCK_DATA_ROOT",
	"websocket.heartbeat_interval": "WS_HEARTBEAT_INTERVAL",
}

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig layers defaults, the optional YAML file at configPath, a .env file
// and the process environment, in that order of increasing precedence.
func NewConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// 1. YAML file, when given
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
		}
	}

	// 2. .env into the process environment; absence is normal
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 3. environment
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range v.AllKeys() {
		names := []string{key, strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		if alias, ok := envAliases[key]; ok {
			names = []string{key, alias, names[1]}
		}
		if err := v.BindEnv(names...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var modelConfig models.MConfig
	if err := v.Unmarshal(&modelConfig); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	modelConfig.CorsOrigins = splitList(modelConfig.CorsOrigins)
	modelConfig.DataSource.Sources = splitList(modelConfig.DataSource.Sources)

	config := &Config{MConfig: &modelConfig}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "tw-tick-api")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "INFO")
	v.SetDefault("log_file", "")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("default_convert_formats", true)

	v.SetDefault("tick_api.api_key", "")
	v.SetDefault("tick_api.host", "127.0.0.1")
	v.SetDefault("tick_api.port", 3000)
	v.SetDefault("tick_api.data_root", "/data/tick")
	v.SetDefault("tick_api.timeout_seconds", 30)

	v.SetDefault("storage.db_type", SourceSQLite)
	v.SetDefault("storage.db_path", "ticks.db")
	v.SetDefault("storage.db_connection_string", "")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl_seconds", 3600)

	v.SetDefault("data_source.sources", []string{SourceTickAPI})

	v.SetDefault("websocket.heartbeat_interval", 30)
	v.SetDefault("websocket.stream_interval_ms", 1)
	v.SetDefault("websocket.fetch_timeout_seconds", 30)
	v.SetDefault("websocket.write_wait_seconds", 10)
	v.SetDefault("websocket.pong_wait_seconds", 60)
	v.SetDefault("websocket.time_precision", "microsecond")

	v.SetDefault("limits.min_date", "2020-03-02")
	v.SetDefault("limits.max_date", "")
	v.SetDefault("limits.rest_requests_per_window", 60)
	v.SetDefault("limits.rest_window_seconds", 60)
	v.SetDefault("limits.max_ws_connections_per_ip", 10)
	v.SetDefault("limits.max_range_days", 366)

	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.probe_interval_seconds", 30)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.url_path", "/v1/traces")
	v.SetDefault("tracing.insecure", true)
}

// -----------------------------------------------------------------------------

// splitList trims entries and splits any that still hold commas.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d", c.Port)
	}

	// Data sources
	if len(c.DataSource.Sources) == 0 {
		return fmt.Errorf("at least one data source must be configured")
	}
	for _, src := range c.DataSource.Sources {
		switch src {
		case SourceTickAPI:
			if c.TickAPI.Host == "" || c.TickAPI.Port <= 0 {
				return fmt.Errorf("tick_api source needs a host and port")
			}
			if c.TickAPI.TimeoutSeconds <= 0 {
				return fmt.Errorf("tick_api timeout must be greater than 0")
			}
		case SourceSQLite:
			if c.Storage.DBPath == "" {
				return fmt.Errorf("database path cannot be empty for sqlite")
			}
		case SourcePostgres:
			if c.Storage.DBConnectionString == "" {
				return fmt.Errorf("connection string cannot be empty for postgres")
			}
		default:
			return fmt.Errorf("unknown data source '%s'", src)
		}
	}

	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache enabled without redis address")
	}

	// WebSocket
	if c.WebSocket.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be greater than 0")
	}
	if c.WebSocket.StreamIntervalMs < 0 {
		return fmt.Errorf("stream interval cannot be negative")
	}
	if c.WebSocket.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch timeout must be greater than 0")
	}
	if c.WebSocket.WriteWaitSeconds <= 0 || c.WebSocket.PongWaitSeconds <= 0 {
		return fmt.Errorf("websocket write wait and pong wait must be greater than 0")
	}
	switch c.WebSocket.TimePrecision {
	case "microsecond", "millisecond":
	default:
		return fmt.Errorf("time precision must be microsecond or millisecond, got '%s'", c.WebSocket.TimePrecision)
	}

	// Limits
	minDate, err := time.Parse("2006-01-02", c.Limits.MinDate)
	if err != nil {
		return fmt.Errorf("invalid min_date '%s': %w", c.Limits.MinDate, err)
	}
	if c.Limits.MaxDate != "" {
		maxDate, err := time.Parse("2006-01-02", c.Limits.MaxDate)
		if err != nil {
			return fmt.Errorf("invalid max_date '%s': %w", c.Limits.MaxDate, err)
		}
		if maxDate.Before(minDate) {
			return fmt.Errorf("max_date %s precedes min_date %s", c.Limits.MaxDate, c.Limits.MinDate)
		}
	}
	if c.Limits.RestRequestsPerWindow <= 0 || c.Limits.RestWindowSeconds <= 0 {
		return fmt.Errorf("rest rate limit must be greater than 0")
	}
	if c.Limits.MaxWSConnectionsPerIP <= 0 {
		return fmt.Errorf("max websocket connections per ip must be greater than 0")
	}
	if c.Limits.MaxRangeDays <= 0 {
		return fmt.Errorf("max range days must be greater than 0")
	}

	if c.Grpc.Enabled && (c.Grpc.Port <= 0 || c.Grpc.Port > 65535) {
		return fmt.Errorf("invalid grpc port number: %d", c.Grpc.Port)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing enabled without endpoint")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
