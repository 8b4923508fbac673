package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Predict   PredictConfig   `mapstructure:"predict"`
	Detection DetectionConfig `mapstructure:"detection"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	ReadTimeout    int `mapstructure:"read_timeout"`
	WriteTimeout   int `mapstructure:"write_timeout"`
	BodyLimitMB    int `mapstructure:"body_limit_mb"`
	RequestTimeout int `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Enabled      bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// PredictConfig points at the object-detection model service.
type PredictConfig struct {
	TextURL        string        `mapstructure:"text_url"`
	PointURL       string        `mapstructure:"point_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	// ResponseCRS is the CRS the service returns geometries in.
	ResponseCRS string `mapstructure:"response_crs"`
}

// DetectionConfig bounds what a single detection may ask for.
type DetectionConfig struct {
	MinZoom       int           `mapstructure:"min_zoom"`
	MaxZoom       int           `mapstructure:"max_zoom"`
	DefaultZoom   int           `mapstructure:"default_zoom"`
	MaxTiles      int           `mapstructure:"max_tiles"`
	BoxThreshold  float64       `mapstructure:"box_threshold"`
	TextThreshold float64       `mapstructure:"text_threshold"`
	DedupWindow   time.Duration `mapstructure:"dedup_window"`
	ResultTTL     time.Duration `mapstructure:"result_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: GEODETECT_PREDICT_TEXT_URL → predict.text_url
	v.SetEnvPrefix("GEODETECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 130)
	v.SetDefault("server.body_limit_mb", 20)
	v.SetDefault("server.request_timeout", 125)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "geodetect")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "geodetect")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_endpoint", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "detection-queue")
	v.SetDefault("predict.text_url", "http://localhost:8000/predict")
	v.SetDefault("predict.point_url", "http://localhost:8000/predict_points")
	v.SetDefault("predict.timeout", 120*time.Second)
	v.SetDefault("predict.max_retries", 3)
	v.SetDefault("predict.initial_backoff", time.Second)
	v.SetDefault("predict.response_crs", "EPSG:4326")
	v.SetDefault("detection.min_zoom", 19)
	v.SetDefault("detection.max_zoom", 22)
	v.SetDefault("detection.default_zoom", 20)
	v.SetDefault("detection.max_tiles", 2000)
	v.SetDefault("detection.box_threshold", 0.24)
	v.SetDefault("detection.text_threshold", 0.24)
	v.SetDefault("detection.dedup_window", 3*time.Second)
	v.SetDefault("detection.result_ttl", 10*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "server.request_timeout must be positive")
	}
	if c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required")
	}
	if c.Predict.TextURL == "" {
		errs = append(errs, "predict.text_url is required")
	}
	if c.Predict.PointURL == "" {
		errs = append(errs, "predict.point_url is required")
	}
	if c.Predict.Timeout <= 0 {
		errs = append(errs, "predict.timeout must be positive")
	}
	if c.Predict.MaxRetries < 0 {
		errs = append(errs, "predict.max_retries must not be negative")
	}
	if c.Detection.MinZoom < 0 || c.Detection.MinZoom > c.Detection.MaxZoom {
		errs = append(errs, fmt.Sprintf("detection zoom range [%d,%d] is invalid", c.Detection.MinZoom, c.Detection.MaxZoom))
	}
	if c.Detection.DefaultZoom < c.Detection.MinZoom || c.Detection.DefaultZoom > c.Detection.MaxZoom {
		errs = append(errs, fmt.Sprintf("detection.default_zoom %d is outside [%d,%d]", c.Detection.DefaultZoom, c.Detection.MinZoom, c.Detection.MaxZoom))
	}
	if c.Detection.MaxTiles <= 0 {
		errs = append(errs, "detection.max_tiles must be positive")
	}
	if !unit(c.Detection.BoxThreshold) || !unit(c.Detection.TextThreshold) {
		errs = append(errs, "detection thresholds must be within [0,1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func unit(f float64) bool { return f >= 0 && f <= 1 }
