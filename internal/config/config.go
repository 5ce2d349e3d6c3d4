package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "compass.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. COMPASS_API_HOST.
const EnvPrefix = "COMPASS"

// APIConfig addresses the actor coordination service.
type APIConfig struct {
	Host    string        `json:"host" mapstructure:"host"`
	Port    int           `json:"port" mapstructure:"port"`
	Version string        `json:"version" mapstructure:"version"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// ControllerConfig holds the sync controller and event loop settings.
type ControllerConfig struct {
	MinInterval time.Duration `json:"minInterval" mapstructure:"minInterval"`
	QueueSize   int           `json:"queueSize" mapstructure:"queueSize"`
}

// SensorConfig selects where orientation samples come from.
type SensorConfig struct {
	Source   string        `json:"source" mapstructure:"source"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	Rate     float64       `json:"rate" mapstructure:"rate"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`

	// MetricInterval is how often metrics are exported.
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
}

// ServerConfig holds the reference actor service settings.
type ServerConfig struct {
	Listen       string `json:"listen" mapstructure:"listen"`
	DBPath       string `json:"dbPath" mapstructure:"dbPath"`
	SnapshotPath string `json:"snapshotPath" mapstructure:"snapshotPath"` // copy of an in-memory store written on shutdown
}

// SetDefaults registers every default value. Load calls it; binaries that
// skip the config file can call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./compasslogs")

	viper.SetDefault("api.host", "10.0.0.179")
	viper.SetDefault("api.port", 9090)
	viper.SetDefault("api.version", "1.0")
	viper.SetDefault("api.timeout", "0s")

	viper.SetDefault("controller.minInterval", "50ms")
	viper.SetDefault("dispatcher.queueSize", 256)

	viper.SetDefault("sensor.source", "stdin")
	viper.SetDefault("sensor.interval", "20ms")
	viper.SetDefault("sensor.rate", 30.0)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "compass")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("server.listen", ":9090")
	viper.SetDefault("server.dbPath", "")
	viper.SetDefault("server.snapshotPath", "")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Defaults stay in
// effect when the file is missing; the error tells the caller so.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetAPIConfig returns the remote service settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		Host:    viper.GetString("api.host"),
		Port:    viper.GetInt("api.port"),
		Version: viper.GetString("api.version"),
		Timeout: viper.GetDuration("api.timeout"),
	}
}

// GetControllerConfig returns the throttle and event queue settings.
func GetControllerConfig() ControllerConfig {
	return ControllerConfig{
		MinInterval: viper.GetDuration("controller.minInterval"),
		QueueSize:   viper.GetInt("dispatcher.queueSize"),
	}
}

// GetSensorConfig returns the sensor source settings.
func GetSensorConfig() SensorConfig {
	return SensorConfig{
		Source:   strings.ToLower(viper.GetString("sensor.source")),
		Interval: viper.GetDuration("sensor.interval"),
		Rate:     viper.GetFloat64("sensor.rate"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetServerConfig returns the reference actor service settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Listen:       viper.GetString("server.listen"),
		DBPath:       viper.GetString("server.dbPath"),
		SnapshotPath: viper.GetString("server.snapshotPath"),
	}
}
