package config

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Urlbox    UrlboxConfig    `mapstructure:"urlbox"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Retention RetentionConfig `mapstructure:"retention"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type UrlboxConfig struct {
	APIKey        string        `mapstructure:"api_key" validate:"required"`
	APISecret     string        `mapstructure:"api_secret"`
	APIHostName   string        `mapstructure:"api_host_name" validate:"omitempty,hostname_rfc1123|hostname_port"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" validate:"gt=0"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path" validate:"required"`
	MaxConnections int    `mapstructure:"max_connections" validate:"gt=0"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type RateLimitConfig struct {
	WebhookPerSecond float64 `mapstructure:"webhook_per_second" validate:"gte=0"`
	WebhookBurst     int     `mapstructure:"webhook_burst" validate:"gte=0"`
}

type RetentionConfig struct {
	EventTTL      time.Duration `mapstructure:"event_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	// Keys without a meaningful default are registered empty so that
	// AutomaticEnv can still fill them.
	v.SetDefault("urlbox.api_key", "")
	v.SetDefault("urlbox.api_secret", "")
	v.SetDefault("urlbox.api_host_name", "")
	v.SetDefault("urlbox.webhook_secret", "")
	v.SetDefault("urlbox.timeout", 100*time.Second)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("database.path", "data/urlbox.db")
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_ttl", 24*time.Hour)

	v.SetDefault("rate_limit.webhook_per_second", 20)
	v.SetDefault("rate_limit.webhook_burst", 40)

	v.SetDefault("retention.event_ttl", 30*24*time.Hour)
	v.SetDefault("retention.sweep_interval", time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
}

// Load reads the YAML file at path (skipped when empty) and overlays
// environment variables named after the keys, e.g. URLBOX_API_KEY or
// SERVER_PORT. A .env file in the working directory is loaded first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks struct constraints; an api key is always required.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New("config: invalid " + verrs[0].Namespace() + " (" + verrs[0].Tag() + ")")
		}
		return err
	}
	return nil
}
