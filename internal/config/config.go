package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds process-level settings. Everything business-tunable
// (commission rate, holding days, withdrawal limits) lives in the
// platform_configs row instead and is editable at runtime.
type Config struct {
	Environment string `mapstructure:"environment"`
	HTTPAddr    string `mapstructure:"http_addr"`

	Database struct {
		DSN             string        `mapstructure:"dsn"`
		MaxOpenConns    int           `mapstructure:"max_open_conns"`
		MaxIdleConns    int           `mapstructure:"max_idle_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	} `mapstructure:"database"`

	Gateway struct {
		Provider      string `mapstructure:"provider"`
		WebhookSecret string `mapstructure:"webhook_secret"`
		PaymentURL    string `mapstructure:"payment_url"`
	} `mapstructure:"gateway"`

	Scheduler struct {
		ReleaseInterval  time.Duration `mapstructure:"release_interval"`
		EscalateInterval time.Duration `mapstructure:"escalate_interval"`
		BatchSize        int           `mapstructure:"batch_size"`
	} `mapstructure:"scheduler"`

	Webhook struct {
		RateLimit  int           `mapstructure:"rate_limit"`
		RateWindow time.Duration `mapstructure:"rate_window"`
	} `mapstructure:"webhook"`

	Telemetry struct {
		Enabled          bool    `mapstructure:"enabled"`
		ExporterEndpoint string  `mapstructure:"exporter_endpoint"`
		ExporterProtocol string  `mapstructure:"exporter_protocol"`
		SamplingRatio    float64 `mapstructure:"sampling_ratio"`
	} `mapstructure:"telemetry"`
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// Load reads config.yaml (optional) plus ESCROW_* environment variables.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("escrow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("gateway.provider", "sandbox")
	v.SetDefault("gateway.payment_url", "https://pay.sandbox.test/checkout")
	v.SetDefault("scheduler.release_interval", 30*time.Minute)
	v.SetDefault("scheduler.escalate_interval", 30*time.Minute)
	v.SetDefault("scheduler.batch_size", 50)
	v.SetDefault("webhook.rate_limit", 120)
	v.SetDefault("webhook.rate_window", time.Minute)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter_protocol", "grpc")
	v.SetDefault("telemetry.sampling_ratio", 1.0)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
