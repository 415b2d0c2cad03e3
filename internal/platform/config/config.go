package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	JWT         JWTConfig      `mapstructure:"jwt"`
	Webhooks    WebhooksConfig `mapstructure:"webhooks"`
	Provider    ProviderConfig `mapstructure:"provider"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type WebhooksConfig struct {
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	RetryBase       time.Duration `mapstructure:"retry_base"`
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	ToleranceWindow time.Duration `mapstructure:"tolerance_window"`
	ReceiverBaseURL string        `mapstructure:"receiver_base_url"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

type ProviderConfig struct {
	Name         string        `mapstructure:"name"`
	BaseURL      string        `mapstructure:"base_url"`
	VerifyToken  string        `mapstructure:"verify_token"`
	AppSecret    string        `mapstructure:"app_secret"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("webhooks.delivery_timeout", 10*time.Second)
	viper.SetDefault("webhooks.retry_base", 30*time.Second)
	viper.SetDefault("webhooks.retry_max_delay", time.Hour)
	viper.SetDefault("webhooks.max_attempts", 8)
	viper.SetDefault("webhooks.tolerance_window", 5*time.Minute)
	viper.SetDefault("webhooks.poll_interval", 10*time.Second)
	viper.SetDefault("provider.fetch_timeout", 15*time.Second)
}

func (c *Config) IsDevelopment() bool {
	return c.Environment != "production"
}
