package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default netmuxd timings and ports.
const (
	DefaultPollInterval   = 10 * time.Second
	DefaultHeartbeatPort  = 62078
	DefaultReceiveTimeout = 15 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultWriteTimeout   = 5 * time.Second

	// maxTargetLength matches the longest textual IPv6 address.
	maxTargetLength = 45
)

// Config is the root configuration structure for netmuxd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Daemon     DaemonConfig     `yaml:"daemon"`
	Targets    []TargetConfig   `yaml:"targets"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Heartbeat  HeartbeatConfig  `yaml:"heartbeat"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DaemonConfig identifies this daemon instance.
type DaemonConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// TargetConfig is one device reached by direct address.
type TargetConfig struct {
	// Address is an IPv4 or IPv6 literal.
	Address string `yaml:"address"`

	// PairRecordID identifies the device; it becomes its serial.
	PairRecordID string `yaml:"pair_record_id"`
}

// SupervisorConfig contains reconnect loop settings.
type SupervisorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// HeartbeatConfig contains liveness exchange settings.
type HeartbeatConfig struct {
	Port           int           `yaml:"port"`
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// WriteTimeout bounds sending one heartbeat reply.
	WriteTimeout time.Duration `yaml:"write_timeout"`
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

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NETMUXD_SECTION_KEY
// For example: NETMUXD_DATABASE_PATH, NETMUXD_API_PORT
//
// Call LoadEnvFile first to populate the environment from a .env file.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile loads environment variables from path. A missing file is not
// an error so .env files stay optional. Variables already set in the
// environment win.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			ID:   "netmuxd-001",
			Name: "netmuxd",
		},
		Supervisor: SupervisorConfig{
			PollInterval: DefaultPollInterval,
		},
		Heartbeat: HeartbeatConfig{
			Port:           DefaultHeartbeatPort,
			ReceiveTimeout: DefaultReceiveTimeout,
			ConnectTimeout: DefaultConnectTimeout,
			WriteTimeout:   DefaultWriteTimeout,
		},
		Database: DatabaseConfig{
			Path:        "./data/netmuxd.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "netmuxd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8420,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NETMUXD_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	// Targets: NETMUXD_TARGET=address[,pair_record_id] adds one target.
	if v := os.Getenv("NETMUXD_TARGET"); v != "" {
		addr, id, _ := strings.Cut(v, ",")
		cfg.Targets = append(cfg.Targets, TargetConfig{
			Address:      strings.TrimSpace(addr),
			PairRecordID: strings.TrimSpace(id),
		})
	}

	// Supervisor / heartbeat
	if v := os.Getenv("NETMUXD_SUPERVISOR_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("NETMUXD_SUPERVISOR_POLL_INTERVAL: %w", err))
		} else {
			cfg.Supervisor.PollInterval = d
		}
	}
	if v := os.Getenv("NETMUXD_HEARTBEAT_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("NETMUXD_HEARTBEAT_PORT: %w", err))
		} else {
			cfg.Heartbeat.Port = p
		}
	}
	if v := os.Getenv("NETMUXD_HEARTBEAT_WRITE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("NETMUXD_HEARTBEAT_WRITE_TIMEOUT: %w", err))
		} else {
			cfg.Heartbeat.WriteTimeout = d
		}
	}

	// Database
	if v := os.Getenv("NETMUXD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("NETMUXD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NETMUXD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NETMUXD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("NETMUXD_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("NETMUXD_API_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("NETMUXD_API_PORT: %w", err))
		} else {
			cfg.API.Port = p
		}
	}

	// InfluxDB
	if v := os.Getenv("NETMUXD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("NETMUXD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return errors.Join(errs...)
}

// Validate checks the configuration for errors.
//
// Target addresses are only checked for presence and length here; a
// malformed literal is reported by its supervisor on every connect attempt
// instead of stopping the daemon.
func (c *Config) Validate() error {
	var errs []string

	if c.Daemon.ID == "" {
		errs = append(errs, "daemon.id is required")
	}

	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		switch {
		case t.Address == "":
			errs = append(errs, fmt.Sprintf("targets[%d].address is required", i))
		case len(t.Address) > maxTargetLength:
			errs = append(errs, fmt.Sprintf("targets[%d].address must be at most %d characters", i, maxTargetLength))
		case seen[t.Address]:
			errs = append(errs, fmt.Sprintf("targets[%d].address %q is listed twice", i, t.Address))
		}
		seen[t.Address] = true
		if t.PairRecordID == "" {
			errs = append(errs, fmt.Sprintf("targets[%d].pair_record_id is required", i))
		}
	}

	if c.Supervisor.PollInterval <= 0 {
		errs = append(errs, "supervisor.poll_interval must be positive")
	}
	if c.Heartbeat.Port < 1 || c.Heartbeat.Port > 65535 {
		errs = append(errs, "heartbeat.port must be between 1 and 65535")
	}
	if c.Heartbeat.ReceiveTimeout <= 0 {
		errs = append(errs, "heartbeat.receive_timeout must be positive")
	}
	if c.Heartbeat.ConnectTimeout <= 0 {
		errs = append(errs, "heartbeat.connect_timeout must be positive")
	}
	if c.Heartbeat.WriteTimeout <= 0 {
		errs = append(errs, "heartbeat.write_timeout must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
