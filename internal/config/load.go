package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig reads the YAML config file and applies environment overrides
// (e.g. OSS_SERVER_PORT overrides server.port).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("OSS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Cache.Namespace == "" {
		return nil, fmt.Errorf("cache.namespace is required")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("cache.namespace", "default")
	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("cache.evict_fraction", 0.25)
	v.SetDefault("cache.max_payload_size", 10*1024*1024)

	v.SetDefault("sync.fetch_retries", 2)
	v.SetDefault("sync.fetch_backoff", "250ms")
	v.SetDefault("sync.max_attempts", 5)
	v.SetDefault("sync.push_backoff", "500ms")

	v.SetDefault("state_storage.type", "file")
	v.SetDefault("state_storage.data_dir", "./data")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
