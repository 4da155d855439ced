package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration knobs for the console and the dev backend.
type Config struct {
	HTTP struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"http"`
	Backend struct {
		BaseURL        string        `mapstructure:"base_url"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"backend"`
	Storage struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"storage"`
	Session struct {
		EncryptionKey string `mapstructure:"encryption_key"`
	} `mapstructure:"session"`
	Frontend struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"frontend"`
	DevBackend struct {
		Addr        string        `mapstructure:"addr"`
		StoragePath string        `mapstructure:"storage_path"`
		JWTSecret   string        `mapstructure:"jwt_secret"`
		TokenTTL    time.Duration `mapstructure:"token_ttl"`
		QRBaseURL   string        `mapstructure:"qr_base_url"`
	} `mapstructure:"devbackend"`
}

// Load reads the configuration from disk/environment using Viper.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("merchant_console")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine, env and defaults still apply
		if !isNotFound(err) {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8090")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")

	v.SetDefault("backend.base_url", "http://127.0.0.1:8080")
	v.SetDefault("backend.request_timeout", "10s")

	v.SetDefault("storage.path", "./data/console.db")

	v.SetDefault("session.encryption_key", "")

	v.SetDefault("frontend.dir", "./web")

	v.SetDefault("devbackend.addr", ":8080")
	v.SetDefault("devbackend.storage_path", "./data/backend.db")
	v.SetDefault("devbackend.jwt_secret", "change-me-secret")
	v.SetDefault("devbackend.token_ttl", "12h")
	v.SetDefault("devbackend.qr_base_url", "http://127.0.0.1:8080/qr")
}

func (c *Config) validate() error {
	switch len(c.Session.EncryptionKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("session.encryption_key must be 16, 24 or 32 characters")
	}
	if c.Backend.RequestTimeout < 0 {
		return fmt.Errorf("backend.request_timeout must not be negative")
	}
	return nil
}

func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}
