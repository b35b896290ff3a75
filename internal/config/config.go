package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"memit/internal/utils"
)

// Config holds process-level configuration. User-facing preferences (model,
// API keys, theme) live in the settings store, not here.
type Config struct {
	App struct {
		Production bool
	}
	Database struct {
		Path string
	}
	Session struct {
		HistoryLimit int `mapstructure:"history_limit"`
	}
	Broker struct {
		Workers int
		Queue   int
	}
	Explain struct {
		CacheSize int           `mapstructure:"cache_size"`
		CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	}
	Bridge struct {
		Enabled       bool
		Addr          string
		RatePerSecond float64 `mapstructure:"rate_per_second"`
		Burst         int
	}
	Keyring struct {
		Backend  string
		FileDir  string `mapstructure:"file_dir"`
		Password string
	}
}

// Load reads config.yml from the working directory or the user config dir,
// after loading a development .env. Environment variables prefixed MEMIT_
// override file values (MEMIT_BRIDGE_ADDR -> bridge.addr).
func Load() (*Config, error) {
	if err := utils.LoadEnv(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "memit"))
	}

	v.SetEnvPrefix("MEMIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.production", false)
	v.SetDefault("database.path", "")
	v.SetDefault("session.history_limit", 50)
	v.SetDefault("broker.workers", 8)
	v.SetDefault("broker.queue", 64)
	v.SetDefault("explain.cache_size", 128)
	v.SetDefault("explain.cache_ttl", 10*time.Minute)
	v.SetDefault("bridge.enabled", false)
	v.SetDefault("bridge.addr", "127.0.0.1:7457")
	v.SetDefault("bridge.rate_per_second", 5.0)
	v.SetDefault("bridge.burst", 10)
	v.SetDefault("keyring.backend", "")
	v.SetDefault("keyring.file_dir", "")
	v.SetDefault("keyring.password", "")
}
