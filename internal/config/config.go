package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Fleet    FleetConfig    `yaml:"fleet"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret      string `yaml:"secret"`
	ExpireHours int    `yaml:"expire_hours"`
}

// FleetConfig tunes the fleet core: the reconciliation and dispatch
// loops, the delivery queue bounds, and the P&L engine.
type FleetConfig struct {
	MonitorInterval  time.Duration `yaml:"monitor_interval"`
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	QueueMaxItems    int           `yaml:"queue_max_items"`
	MaxAttempts      int           `yaml:"max_attempts"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max"`
	AccountCurrency  string        `yaml:"account_currency"`
	Leverage         float64       `yaml:"leverage"`
	AlertWebhookURL  string        `yaml:"alert_webhook_url"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Override with environment variables if present
	cfg.loadFromEnv()
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) loadFromEnv() {
	// Server
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_MODE"); v != "" {
		c.Server.Mode = v
	}

	// Database
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.DBName = v
	}

	// Redis
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}

	// JWT
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("JWT_EXPIRE_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			c.JWT.ExpireHours = hours
		}
	}

	// Fleet
	if v := os.Getenv("FLEET_ALERT_WEBHOOK_URL"); v != "" {
		c.Fleet.AlertWebhookURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Fleet.MonitorInterval <= 0 {
		c.Fleet.MonitorInterval = 60 * time.Second
	}
	if c.Fleet.DispatchInterval <= 0 {
		c.Fleet.DispatchInterval = time.Second
	}
	if c.Fleet.QueueMaxItems <= 0 {
		c.Fleet.QueueMaxItems = 1000
	}
	if c.Fleet.MaxAttempts <= 0 {
		c.Fleet.MaxAttempts = 5
	}
	if c.Fleet.RetryBackoff <= 0 {
		c.Fleet.RetryBackoff = time.Second
	}
	if c.Fleet.RetryBackoffMax <= 0 {
		c.Fleet.RetryBackoffMax = time.Minute
	}
	if c.Fleet.AccountCurrency == "" {
		c.Fleet.AccountCurrency = "USD"
	}
	if c.Fleet.Leverage <= 0 {
		c.Fleet.Leverage = 100
	}
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}
