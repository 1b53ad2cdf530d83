package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DefaultFile is read when present; a missing file is not an error.
const DefaultFile = "config/default.yaml"

// Config represents the complete configuration for the thermal monitor
type Config struct {
	Network NetworkConfig `yaml:"network"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Limits  LimitsConfig  `yaml:"limits"`
	Logging LoggingConfig `yaml:"logging"`
	Publish PublishConfig `yaml:"publish"`
}

// NetworkConfig holds network-related settings
type NetworkConfig struct {
	RPC  RPCConfig  `yaml:"rpc"`
	HTTP HTTPConfig `yaml:"http"`
}

// RPCConfig holds the TCP JSON-RPC server settings
type RPCConfig struct {
	Port            int      `yaml:"port"`
	MaxWorkers      int      `yaml:"maxWorkers"`
	WriteTimeoutSec int      `yaml:"writeTimeoutSec"`
	AllowedCIDRs    []string `yaml:"allowedCidrs"`
}

// HTTPConfig holds HTTP gateway settings
type HTTPConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           int      `yaml:"port"`
	ServerHeader   string   `yaml:"serverHeader"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// SensorConfig controls host sensor selection
type SensorConfig struct {
	KeyPrefixes     []string `yaml:"keyPrefixes"`
	FallbackCelsius float64  `yaml:"fallbackCelsius"`
	ReadTimeoutMs   int      `yaml:"readTimeoutMs"`
	ForceFallback   bool     `yaml:"forceFallback"`
}

// LimitsConfig bounds caller supplied durations. Zero disables a limit.
type LimitsConfig struct {
	MaxStressSec      int `yaml:"maxStressSec"`
	MinStreamInterval int `yaml:"minStreamIntervalSec"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// PublishConfig holds the optional sample sinks
type PublishConfig struct {
	QueueSize int          `yaml:"queueSize"`
	Kafka     KafkaConfig  `yaml:"kafka"`
	MQTT      MQTTConfig   `yaml:"mqtt"`
	Influx    InfluxConfig `yaml:"influx"`
}

// KafkaConfig configures the Kafka sample sink
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MQTTConfig configures the MQTT sample sink
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"clientId"`
	QoS      int    `yaml:"qos"`
}

// InfluxConfig configures the InfluxDB sample sink
type InfluxConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// Load builds the configuration from defaults, an optional .env file,
// config/default.yaml, an explicit file and environment variables.
// path may be empty.
func Load(path string) (*Config, error) {
	cfg := getDefaultConfig()

	// .env only seeds the process environment; real env vars win
	_ = godotenv.Load()

	if err := loadFromFile(cfg, DefaultFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", DefaultFile, err)
	}

	if path == "" {
		path = os.Getenv("THERMAL_CONFIG")
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return getDefaultConfig()
}

func getDefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			RPC: RPCConfig{
				Port:            50051,
				MaxWorkers:      10,
				WriteTimeoutSec: 10,
				AllowedCIDRs:    []string{"0.0.0.0/0", "::/0"},
			},
			HTTP: HTTPConfig{
				Enabled:        true,
				Port:           8080,
				AllowedOrigins: []string{"*"},
			},
		},
		Sensor: SensorConfig{
			KeyPrefixes: []string{
				"bcm2835_thermal",
				"cpu_thermal",
				"cpu-thermal",
				"soc_thermal",
				"coretemp",
				"k10temp",
				"zenpower",
				"acpitz",
			},
			FallbackCelsius: 40.0,
			ReadTimeoutMs:   2000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Publish: PublishConfig{
			QueueSize: 256,
			Kafka: KafkaConfig{
				Topic: "thermal.samples",
			},
			MQTT: MQTTConfig{
				Topic:    "thermal/samples",
				ClientID: "thermalmon",
			},
			Influx: InfluxConfig{
				Bucket:      "thermal",
				Measurement: "cpu_temperature",
			},
		},
	}
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("THERMAL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Network.RPC.Port = port
		}
	}

	if v := os.Getenv("THERMAL_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Network.HTTP.Port = port
		}
	}

	if v := os.Getenv("THERMAL_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Network.RPC.MaxWorkers = n
		}
	}

	if v := os.Getenv("THERMAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("THERMAL_FALLBACK_CELSIUS"); v != "" {
		if c, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Sensor.FallbackCelsius = c
		}
	}

	if v := os.Getenv("THERMAL_KAFKA_BROKERS"); v != "" {
		cfg.Publish.Kafka.Brokers = splitList(v)
		cfg.Publish.Kafka.Enabled = true
	}

	if v := os.Getenv("THERMAL_MQTT_BROKER"); v != "" {
		cfg.Publish.MQTT.Broker = v
		cfg.Publish.MQTT.Enabled = true
	}

	if v := os.Getenv("THERMAL_INFLUX_URL"); v != "" {
		cfg.Publish.Influx.URL = v
		cfg.Publish.Influx.Enabled = true
	}

	if v := os.Getenv("THERMAL_INFLUX_TOKEN"); v != "" {
		cfg.Publish.Influx.Token = v
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Network.RPC.Port < 0 || cfg.Network.RPC.Port > 65535 {
		return fmt.Errorf("invalid rpc port %d", cfg.Network.RPC.Port)
	}

	if cfg.Network.HTTP.Enabled && (cfg.Network.HTTP.Port < 0 || cfg.Network.HTTP.Port > 65535) {
		return fmt.Errorf("invalid http port %d", cfg.Network.HTTP.Port)
	}

	if cfg.Network.HTTP.Enabled && cfg.Network.HTTP.Port != 0 && cfg.Network.HTTP.Port == cfg.Network.RPC.Port {
		return fmt.Errorf("http and rpc ports must differ, both are %d", cfg.Network.RPC.Port)
	}

	if cfg.Network.RPC.MaxWorkers <= 0 {
		return fmt.Errorf("maxWorkers must be positive, got %d", cfg.Network.RPC.MaxWorkers)
	}

	for _, cidr := range cfg.Network.RPC.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid allowed CIDR %q: %w", cidr, err)
		}
	}

	if cfg.Limits.MaxStressSec < 0 || cfg.Limits.MinStreamInterval < 0 {
		return fmt.Errorf("limits must not be negative")
	}

	validLevels := []string{"trace", "debug", "info", "warn", "warning", "error"}
	if !contains(validLevels, strings.ToLower(cfg.Logging.Level)) {
		return fmt.Errorf("invalid log level %s, must be one of: %v", cfg.Logging.Level, validLevels)
	}

	validFormats := []string{"text", "json"}
	if !contains(validFormats, cfg.Logging.Format) {
		return fmt.Errorf("invalid log format %s, must be one of: %v", cfg.Logging.Format, validFormats)
	}

	if cfg.Publish.Kafka.Enabled && (len(cfg.Publish.Kafka.Brokers) == 0 || cfg.Publish.Kafka.Topic == "") {
		return fmt.Errorf("kafka sink needs brokers and a topic")
	}

	if cfg.Publish.MQTT.Enabled && (cfg.Publish.MQTT.Broker == "" || cfg.Publish.MQTT.Topic == "") {
		return fmt.Errorf("mqtt sink needs a broker and a topic")
	}

	if cfg.Publish.MQTT.QoS < 0 || cfg.Publish.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", cfg.Publish.MQTT.QoS)
	}

	if cfg.Publish.Influx.Enabled && (cfg.Publish.Influx.URL == "" || cfg.Publish.Influx.Org == "" || cfg.Publish.Influx.Bucket == "") {
		return fmt.Errorf("influx sink needs url, org and bucket")
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
