package models

// MConfig Structure
type MConfig struct {
	Name                  string            `yaml:"name" mapstructure:"name"`
	Host                  string            `yaml:"host" mapstructure:"host"`
	Port                  int               `yaml:"port" mapstructure:"port"`
	Debug                 bool              `yaml:"debug" mapstructure:"debug"`
	LogLevel              string            `yaml:"log_level" mapstructure:"log_level"`
	LogFile               string            `yaml:"log_file" mapstructure:"log_file"`
	CorsOrigins           []string          `yaml:"cors_origins" mapstructure:"cors_origins"`
	DefaultConvertFormats bool              `yaml:"default_convert_formats" mapstructure:"default_convert_formats"`
	TickAPI               MTickAPIConfig    `yaml:"tick_api" mapstructure:"tick_api"`
	Storage               MStorageConfig    `yaml:"storage" mapstructure:"storage"`
	Cache                 MCacheConfig      `yaml:"cache" mapstructure:"cache"`
	DataSource            MDataSourceConfig `yaml:"data_source" mapstructure:"data_source"`
	WebSocket             MWebSocketConfig  `yaml:"websocket" mapstructure:"websocket"`
	Limits                MLimitsConfig     `yaml:"limits" mapstructure:"limits"`
	Grpc                  MGrpcConfig       `yaml:"grpc" mapstructure:"grpc"`
	Tracing               MTracingConfig    `yaml:"tracing" mapstructure:"tracing"`
}

// MTickAPIConfig points at the SQL-over-HTTP tick backend.
type MTickAPIConfig struct {
	APIKey         string `yaml:"api_key" mapstructure:"api_key"`
	Host           string `yaml:"host" mapstructure:"host"`
	Port           int    `yaml:"port" mapstructure:"port"`
	DataRoot       string `yaml:"data_root" mapstructure:"data_root"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type" mapstructure:"db_type"`
	DBPath             string `yaml:"db_path" mapstructure:"db_path"`
	DBConnectionString string `yaml:"db_connection_string" mapstructure:"db_connection_string"`
}

type MCacheConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	RedisAddr  string `yaml:"redis_addr" mapstructure:"redis_addr"`
	Password   string `yaml:"password" mapstructure:"password"`
	DB         int    `yaml:"db" mapstructure:"db"`
	TTLSeconds int    `yaml:"ttl_seconds" mapstructure:"ttl_seconds"`
}

type MDataSourceConfig struct {
	// Sources are tried in order; later entries answer only when earlier ones are unavailable.
	Sources []string `yaml:"sources" mapstructure:"sources"`
}

type MWebSocketConfig struct {
	HeartbeatInterval   int    `yaml:"heartbeat_interval" mapstructure:"heartbeat_interval"` // seconds
	StreamIntervalMs    int    `yaml:"stream_interval_ms" mapstructure:"stream_interval_ms"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds" mapstructure:"fetch_timeout_seconds"`
	WriteWaitSeconds    int    `yaml:"write_wait_seconds" mapstructure:"write_wait_seconds"`
	PongWaitSeconds     int    `yaml:"pong_wait_seconds" mapstructure:"pong_wait_seconds"`
	TimePrecision       string `yaml:"time_precision" mapstructure:"time_precision"` // "microsecond" or "millisecond"
}

type MLimitsConfig struct {
	MinDate               string `yaml:"min_date" mapstructure:"min_date"`
	MaxDate               string `yaml:"max_date" mapstructure:"max_date"`
	RestRequestsPerWindow int    `yaml:"rest_requests_per_window" mapstructure:"rest_requests_per_window"`
	RestWindowSeconds     int    `yaml:"rest_window_seconds" mapstructure:"rest_window_seconds"`
	MaxWSConnectionsPerIP int    `yaml:"max_ws_connections_per_ip" mapstructure:"max_ws_connections_per_ip"`
	MaxRangeDays          int    `yaml:"max_range_days" mapstructure:"max_range_days"` // calendar days per range request
}

type MGrpcConfig struct {
	Enabled              bool   `yaml:"enabled" mapstructure:"enabled"`
	Host                 string `yaml:"host" mapstructure:"host"`
	Port                 int    `yaml:"port" mapstructure:"port"`
	ProbeIntervalSeconds int    `yaml:"probe_interval_seconds" mapstructure:"probe_interval_seconds"`
}

type MTracingConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	URLPath  string `yaml:"url_path" mapstructure:"url_path"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`
}
