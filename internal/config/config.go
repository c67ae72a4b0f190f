package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	LogMode bool   `mapstructure:"log_mode"`
}

// RedisConfig is optional: with an empty Addr the token blacklist
// falls back to an in-process store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TelegramConfig struct {
	BotToken         string `mapstructure:"bot_token"`
	AssertionMaxAgeH int    `mapstructure:"assertion_max_age_hours"`
}

type JWTConfig struct {
	AccessSecret  string `mapstructure:"access_secret"`
	RefreshSecret string `mapstructure:"refresh_secret"`
	Issuer        string `mapstructure:"issuer"`
	Audience      string `mapstructure:"audience"`

	AccessTTLMinutes    int `mapstructure:"access_ttl_minutes"`
	RefreshTTLDays      int `mapstructure:"refresh_ttl_days"`
	RefreshRememberDays int `mapstructure:"refresh_remember_days"`
	MaxActiveSessions   int `mapstructure:"max_active_sessions"`

	// 设备指纹不匹配时的策略："warn"（默认，只记日志）或 "reject"
	FingerprintPolicy string `mapstructure:"fingerprint_policy"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
}

// AccessTTL returns the access-token lifetime (default 15 minutes).
func (c *JWTConfig) AccessTTL() time.Duration {
	if c.AccessTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.AccessTTLMinutes) * time.Minute
}

// RefreshTTL returns the refresh-token lifetime: 7 days, or 30 days
// when the client asked to be remembered.
func (c *JWTConfig) RefreshTTL(rememberMe bool) time.Duration {
	days := c.RefreshTTLDays
	if days <= 0 {
		days = 7
	}
	if rememberMe {
		days = c.RefreshRememberDays
		if days <= 0 {
			days = 30
		}
	}
	return time.Duration(days) * 24 * time.Hour
}

// MaxSessions returns the per-user active-session ceiling (default 10).
func (c *JWTConfig) MaxSessions() int {
	if c.MaxActiveSessions <= 0 {
		return 10
	}
	return c.MaxActiveSessions
}

// AssertionMaxAge returns the login-assertion freshness window (default 24h).
func (c *TelegramConfig) AssertionMaxAge() time.Duration {
	if c.AssertionMaxAgeH <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.AssertionMaxAgeH) * time.Hour
}

var (
	appConfig *Config
	once      sync.Once
)

// Load loads configuration from given file path (e.g. "config.yaml").
// If path is empty, it defaults to "config.yaml" in current working directory.
func Load(path string) (*Config, error) {
	var err error
	once.Do(func() {
		v := viper.New()

		if path == "" {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath(".")
		} else {
			v.SetConfigFile(path)
		}

		// environment overrides, e.g. TAIG_SERVER_PORT=9000
		v.SetEnvPrefix("TAIG")
		v.AutomaticEnv()

		if err = v.ReadInConfig(); err != nil {
			err = fmt.Errorf("read config: %w", err)
			return
		}

		var c Config
		if err = v.Unmarshal(&c); err != nil {
			err = fmt.Errorf("unmarshal config: %w", err)
			return
		}

		appConfig = &c
	})

	if err != nil {
		return nil, err
	}
	return appConfig, nil
}

// Get returns the loaded global configuration.
// Call Load() once at application startup.
func Get() *Config {
	return appConfig
}
