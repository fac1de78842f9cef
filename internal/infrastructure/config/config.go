package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the floor heating controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Hass      HassConfig      `yaml:"hass"`
	Control   ControlConfig   `yaml:"control"`
	Audit     AuditConfig     `yaml:"audit"`
}

// DeviceConfig identifies the controller.
type DeviceConfig struct {
	Name         string `yaml:"name"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
	Zones        int    `yaml:"zones"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// MaxQueryLength is the longest query string a handler accepts.
	MaxQueryLength int `yaml:"max_query_length"`

	// ReclaimTimeout is how long (in seconds) the engine waits for a
	// dispatched request to complete before answering 503 itself. It must
	// be shorter than Timeouts.Write.
	ReclaimTimeout int `yaml:"reclaim_timeout"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// DispatchConfig contains the async dispatcher settings.
type DispatchConfig struct {
	QueueSize     int `yaml:"queue_size"`
	Workers       int `yaml:"workers"`
	WorkerWaitMS  int `yaml:"worker_wait_ms"`
	EnqueueWaitMS int `yaml:"enqueue_wait_ms"`

	// RateLimit is the sustained admissions per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HassConfig contains Home Assistant MQTT discovery settings.
type HassConfig struct {
	Enabled         bool   `yaml:"enabled"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	NodeID          string `yaml:"node_id"`
}

// ControlConfig contains control loop and hardware settings.
type ControlConfig struct {
	// Interval is the loop period in milliseconds.
	Interval int `yaml:"interval"`

	// Sensors lists 1-Wire device IDs; index 0 is the inlet probe.
	Sensors    []string `yaml:"sensors"`
	SensorPath string   `yaml:"sensor_path"`

	Relay RelayConfig `yaml:"relay"`
}

// RelayConfig selects the relay board driver.
type RelayConfig struct {
	// Driver is "memory" or "serial".
	Driver   string `yaml:"driver"`
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// AuditConfig contains audit trail settings.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FLOORHEAT_SECTION_KEY
// For example: FLOORHEAT_DATABASE_PATH, FLOORHEAT_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:         "FHCP2mqtt",
			Manufacturer: "floorheat",
			Model:        "FHCP-2",
			Zones:        4,
		},
		Database: DatabaseConfig{
			Path:        "./data/floorheat.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "floorheat-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 80,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			MaxQueryLength: 512,
			ReclaimTimeout: 20,
		},
		Dispatch: DispatchConfig{
			QueueSize:     16,
			Workers:       4,
			WorkerWaitMS:  1000,
			EnqueueWaitMS: 100,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "floorheat",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Hass: HassConfig{
			Enabled:         true,
			DiscoveryPrefix: "homeassistant",
			NodeID:          "FHCP2mqtt",
		},
		Control: ControlConfig{
			Interval:   1000,
			SensorPath: "/sys/bus/w1/devices",
			Relay: RelayConfig{
				Driver:   "memory",
				BaudRate: 9600,
			},
		},
		Audit: AuditConfig{
			Enabled: true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FLOORHEAT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("FLOORHEAT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("FLOORHEAT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FLOORHEAT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FLOORHEAT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("FLOORHEAT_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("FLOORHEAT_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Dispatch
	if v := os.Getenv("FLOORHEAT_DISPATCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dispatch.Workers = n
		}
	}

	// InfluxDB
	if v := os.Getenv("FLOORHEAT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("FLOORHEAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Control
	if v := os.Getenv("FLOORHEAT_RELAY_PORT"); v != "" {
		cfg.Control.Relay.Port = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.Name == "" {
		errs = append(errs, "device.name is required")
	}
	if c.Device.Zones < 0 || c.Device.Zones > 7 {
		errs = append(errs, "device.zones must be between 0 and 7")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.MaxQueryLength < 1 {
		errs = append(errs, "api.max_query_length must be positive")
	}
	if c.API.ReclaimTimeout < 1 {
		errs = append(errs, "api.reclaim_timeout must be positive")
	}
	if c.API.Timeouts.Write > 0 && c.API.ReclaimTimeout >= c.API.Timeouts.Write {
		// The 503 must go out before the server drops the connection.
		errs = append(errs, "api.reclaim_timeout must be shorter than api.timeouts.write")
	}

	if c.Dispatch.Workers < 1 {
		errs = append(errs, "dispatch.workers must be at least 1")
	}
	if c.Dispatch.QueueSize < 1 {
		errs = append(errs, "dispatch.queue_size must be at least 1")
	}
	if c.Dispatch.WorkerWaitMS < 1 || c.Dispatch.EnqueueWaitMS < 1 {
		errs = append(errs, "dispatch wait times must be positive")
	}
	if c.Dispatch.RateLimit < 0 {
		errs = append(errs, "dispatch.rate_limit must not be negative")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Control.Interval < 100 {
		errs = append(errs, "control.interval must be at least 100ms")
	}
	switch c.Control.Relay.Driver {
	case "memory":
	case "serial":
		if c.Control.Relay.Port == "" {
			errs = append(errs, "control.relay.port is required for the serial driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("control.relay.driver %q is not supported", c.Control.Relay.Driver))
	}
	if len(c.Control.Sensors) > 8 {
		errs = append(errs, "control.sensors supports at most 8 probes")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}

// GetReclaimTimeout returns the engine reclaim timeout as a Duration.
func (a APIConfig) GetReclaimTimeout() time.Duration {
	return time.Duration(a.ReclaimTimeout) * time.Second
}

// GetPingInterval returns how often idle websocket peers are pinged.
// Zero disables pings.
func (w WebSocketConfig) GetPingInterval() time.Duration {
	return time.Duration(w.PingInterval) * time.Second
}

// GetPongTimeout returns how long a peer may take to answer a ping. It
// also bounds every frame write.
func (w WebSocketConfig) GetPongTimeout() time.Duration {
	return time.Duration(w.PongTimeout) * time.Second
}

// GetControlInterval returns the control loop period as a Duration.
func (c *Config) GetControlInterval() time.Duration {
	return time.Duration(c.Control.Interval) * time.Millisecond
}

// GetBusyTimeout returns the SQLite busy timeout as a Duration.
func (d DatabaseConfig) GetBusyTimeout() time.Duration {
	return time.Duration(d.BusyTimeout) * time.Second
}
