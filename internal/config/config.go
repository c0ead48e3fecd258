package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/repository/postgres"
	"github.com/repairhub/notify/internal/transport/email"
	"github.com/repairhub/notify/internal/transport/sms"
	"github.com/repairhub/notify/pkg/queue/redisq"
	"github.com/repairhub/notify/pkg/ratelimit"
	"github.com/repairhub/notify/pkg/worker"
)

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password" envconfig:"DB_PASSWORD"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type DeliveryConfig struct {
	PoolSize          int           `mapstructure:"pool_size"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffCap        time.Duration `mapstructure:"backoff_cap"`
	ClaimBlock        time.Duration `mapstructure:"claim_block"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	ReapInterval      time.Duration `mapstructure:"reap_interval"`
	DepthInterval     time.Duration `mapstructure:"depth_interval"`
	AutoDisableAfter  int           `mapstructure:"auto_disable_after"`
}

type RelayConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type ChannelRateConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

type RateLimitsConfig struct {
	Email ChannelRateConfig `mapstructure:"email"`
	SMS   ChannelRateConfig `mapstructure:"sms"`
}

type SMTPConfig struct {
	Host        string        `mapstructure:"host" envconfig:"SMTP_HOST"`
	Port        int           `mapstructure:"port" envconfig:"SMTP_PORT"`
	Username    string        `mapstructure:"username" envconfig:"SMTP_USERNAME"`
	Password    string        `mapstructure:"password" envconfig:"SMTP_PASSWORD"`
	From        string        `mapstructure:"from" envconfig:"SMTP_FROM"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type SMSConfig struct {
	BaseURL     string        `mapstructure:"base_url" envconfig:"SMS_BASE_URL"`
	APIKey      string        `mapstructure:"api_key" envconfig:"SMS_API_KEY"`
	Sender      string        `mapstructure:"sender" envconfig:"SMS_SENDER"`
	MaxBodyLen  int           `mapstructure:"max_body_len"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type AuthConfig struct {
	// APIKeyHash is the bcrypt hash of the service API key; the clear key
	// lives only with callers.
	APIKeyHash  string        `mapstructure:"api_key_hash" envconfig:"API_KEY_HASH"`
	TokenSecret string        `mapstructure:"token_secret" envconfig:"TOKEN_SECRET"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

type APIConfig struct {
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type RetentionConfig struct {
	Days          int           `mapstructure:"days"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
	Relay      RelayConfig      `mapstructure:"relay"`
	RateLimits RateLimitsConfig `mapstructure:"rate_limits"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	SMS        SMSConfig        `mapstructure:"sms"`
	Auth       AuthConfig       `mapstructure:"auth"`
	API        APIConfig        `mapstructure:"api"`
	Retention  RetentionConfig  `mapstructure:"retention"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Credentials come from the environment, never the YAML file.
	if err := envconfig.Process("", &config.SMTP); err != nil {
		return nil, fmt.Errorf("failed to read SMTP environment: %w", err)
	}
	if err := envconfig.Process("", &config.SMS); err != nil {
		return nil, fmt.Errorf("failed to read SMS environment: %w", err)
	}
	if err := envconfig.Process("", &config.Auth); err != nil {
		return nil, fmt.Errorf("failed to read auth environment: %w", err)
	}

	return &config, nil
}

// Conversion methods from config types to component configs

func (c *DatabaseConfig) ToDBConfig() postgres.DatabaseConfig {
	return postgres.DatabaseConfig{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Name:     c.Name,
		SSLMode:  c.SSLMode,
	}
}

func (c *RedisConfig) ToQueueConfig() redisq.Config {
	return redisq.Config{
		URL:          c.URL,
		KeyPrefix:    c.KeyPrefix,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *DeliveryConfig) ToWorkerConfig() worker.DeliveryConfig {
	return worker.DeliveryConfig{
		PoolSize:          c.PoolSize,
		MaxAttempts:       c.MaxAttempts,
		BackoffBase:       c.BackoffBase,
		BackoffCap:        c.BackoffCap,
		ClaimBlock:        c.ClaimBlock,
		VisibilityTimeout: c.VisibilityTimeout,
		ReapInterval:      c.ReapInterval,
		DepthInterval:     c.DepthInterval,
		AutoDisableAfter:  c.AutoDisableAfter,
	}
}

func (c *RelayConfig) ToRelayConfig() worker.RelayConfig {
	return worker.RelayConfig{
		BatchSize:    c.BatchSize,
		PollInterval: c.PollInterval,
	}
}

func (c *RateLimitsConfig) ToBuckets() map[model.Channel]ratelimit.BucketConfig {
	return map[model.Channel]ratelimit.BucketConfig{
		model.ChannelEmail: {PerSecond: c.Email.PerSecond, Burst: c.Email.Burst},
		model.ChannelSMS:   {PerSecond: c.SMS.PerSecond, Burst: c.SMS.Burst},
	}
}

func (c *SMTPConfig) ToAdapterConfig() email.Config {
	return email.Config{
		Host:        c.Host,
		Port:        c.Port,
		Username:    c.Username,
		Password:    c.Password,
		From:        c.From,
		CallTimeout: c.CallTimeout,
	}
}

func (c *SMSConfig) ToAdapterConfig() sms.Config {
	return sms.Config{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Sender:      c.Sender,
		MaxBodyLen:  c.MaxBodyLen,
		CallTimeout: c.CallTimeout,
	}
}
