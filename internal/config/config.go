package config

import (
	"errors"
	"strings"

	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
	"github.com/spf13/viper"
)

const (
	DefaultListenAddr = ":3000"
)

type MySQLConfig struct {
	Dsn             string `mapstructure:"dsn"`
	TablePrefix     string `mapstructure:"tablePrefix"`
	MaxIdleConns    int    `mapstructure:"maxIdleConns"`
	MaxOpenConns    int    `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int    `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int    `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type SessionConfig struct {
	CookieName     string `mapstructure:"cookieName"`
	CookieHttpOnly bool   `mapstructure:"cookieHttpOnly"`
	CookieSecure   bool   `mapstructure:"cookieSecure"`
}

type CSRFConfig struct {
	// ExcludePaths are request path prefixes that skip CSRF validation.
	// Webhook endpoints authenticate with signatures instead of cookies.
	ExcludePaths []string `mapstructure:"excludePaths"`
}

type Config struct {
	Debug        bool          `mapstructure:"debug"`
	SiteName     string        `mapstructure:"siteName"`
	BaseURL      string        `mapstructure:"baseURL"`
	MasterKey    string        `mapstructure:"masterKey"`
	ListenAddr   string        `mapstructure:"listenAddr"`
	AllowOrigins []string      `mapstructure:"allowOrigins"`
	Redis        RedisConfig   `mapstructure:"redis"`
	Session      SessionConfig `mapstructure:"session"`
	CSRF         CSRFConfig    `mapstructure:"csrf"`
	MySQL        MySQLConfig   `mapstructure:"mysql"`
}

func (c *Config) Sanitize() error {
	if c.MasterKey == "" {
		return errors.New("masterKey is required")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.SiteName == "" {
		c.SiteName = params.MFAIssuer
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = params.SessionCookieName
	}
	if len(c.CSRF.ExcludePaths) == 0 {
		c.CSRF.ExcludePaths = []string{"/api/webhooks/"}
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
