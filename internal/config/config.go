package config

import (
	"time"
)

type Config struct {
	Backends     BackendsConfig  `mapstructure:"backends"`
	Cache        CacheConfig     `mapstructure:"cache"`
	Sync         SyncConfig      `mapstructure:"sync"`
	StateStorage StateStorage    `mapstructure:"state_storage"`
	Scheduler    SchedulerConfig `mapstructure:"scheduler"`
	Server       ServerConfig    `mapstructure:"server"`
	Logging      LoggingConfig   `mapstructure:"logging"`
}

type BackendsConfig struct {
	Primary   BackendConnection `mapstructure:"primary"`
	Secondary BackendConnection `mapstructure:"secondary"`
}

type BackendConnection struct {
	BaseURL   string `mapstructure:"base_url"`
	AuthToken string `mapstructure:"auth_token"`
	UseMock   bool   `mapstructure:"use_mock"`
	Timeout   string `mapstructure:"timeout"`
}

func (b BackendConnection) GetTimeout() time.Duration {
	d, err := time.ParseDuration(b.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

type CacheConfig struct {
	Namespace      string  `mapstructure:"namespace"`
	DefaultTTL     string  `mapstructure:"default_ttl"`
	EvictFraction  float64 `mapstructure:"evict_fraction"`
	MaxPayloadSize int64   `mapstructure:"max_payload_size"`
}

func (c CacheConfig) GetDefaultTTL() time.Duration {
	d, _ := time.ParseDuration(c.DefaultTTL)
	return d
}

type SyncConfig struct {
	FetchRetries int    `mapstructure:"fetch_retries"`
	FetchBackoff string `mapstructure:"fetch_backoff"`
	MaxAttempts  int    `mapstructure:"max_attempts"`
	PushBackoff  string `mapstructure:"push_backoff"`
}

func (s SyncConfig) GetFetchBackoff() time.Duration {
	d, err := time.ParseDuration(s.FetchBackoff)
	if err != nil || d < 0 {
		return 250 * time.Millisecond
	}
	return d
}

func (s SyncConfig) GetPushBackoff() time.Duration {
	d, err := time.ParseDuration(s.PushBackoff)
	if err != nil || d < 0 {
		return 500 * time.Millisecond
	}
	return d
}

type StateStorage struct {
	Type     string `mapstructure:"type"` // "file" or "mysql"
	DataDir  string `mapstructure:"data_dir"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}
