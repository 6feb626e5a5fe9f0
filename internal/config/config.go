package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort       = 2330
	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "hanziloop"
	defaultDBCharset  = "utf8mb4"
	defaultRedisURL   = "redis://localhost:6379/0"

	defaultCacheBackend     = "memory"
	defaultCacheTTLHours    = 6
	defaultReuseThreshold   = 10
	defaultPollSeconds      = 60
	defaultContextLimit     = 20
	defaultLogRetentionDays = 90
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int            `yaml:"port"`
	DSN            string         `yaml:"dsn"` // MySQL DSN; assembled from Database when empty
	RedisURL       string         `yaml:"redis_url"`
	Database       DatabaseConfig `yaml:"database"`
	Env            string         `yaml:"env"` // "development" | "production"
	AllowedOrigins []string       `yaml:"allowed_origins"`
	AI             AIConfig       `yaml:"ai"`
	Phrase         PhraseConfig   `yaml:"phrase"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Charset  string `yaml:"charset"`
}

// AIConfig lists the configured generation-service providers.
type AIConfig struct {
	Providers []AIProvider `yaml:"providers"`
}

// AIProvider describes one generation-service endpoint.
type AIProvider struct {
	ID           string `yaml:"id"`
	Type         string `yaml:"type"` // "openai" | "openai-compatible" | "anthropic"
	APIKey       string `yaml:"api_key"`
	Endpoint     string `yaml:"endpoint"`
	DefaultModel string `yaml:"default_model"`
	AssistantID  string `yaml:"assistant_id"` // for the stateful assistant transport
	Enabled      bool   `yaml:"enabled"`
}

// PhraseConfig holds the phrase-engine tunables.
type PhraseConfig struct {
	CacheBackend     string `yaml:"cache_backend"` // "memory" | "redis"
	CacheTTLHours    int    `yaml:"cache_ttl_hours"`
	ReuseThreshold   int    `yaml:"reuse_threshold"`
	PollSeconds      int    `yaml:"poll_seconds"` // hard ceiling on the assistant run poll
	ContextLimit     int    `yaml:"context_limit"`
	LogRetentionDays int    `yaml:"log_retention_days"`
}

// Load reads and normalizes the YAML config file. A missing file is
// not an error: defaults apply, matching a bare dev environment.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *AppConfig) normalize() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Env == "" {
		c.Env = defaultEnv
	}
	if c.RedisURL == "" {
		c.RedisURL = defaultRedisURL
	}

	db := &c.Database
	if db.Host == "" {
		db.Host = defaultDBHost
	}
	if db.Port == 0 {
		db.Port = defaultDBPort
	}
	if db.User == "" {
		db.User = defaultDBUser
	}
	if db.Password == "" {
		db.Password = defaultDBPassword
	}
	if db.Name == "" {
		db.Name = defaultDBName
	}
	if db.Charset == "" {
		db.Charset = defaultDBCharset
	}
	if c.DSN == "" {
		c.DSN = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			db.User, db.Password, db.Host, db.Port, db.Name, db.Charset)
	}

	p := &c.Phrase
	if p.CacheBackend == "" {
		p.CacheBackend = defaultCacheBackend
	}
	if p.CacheTTLHours <= 0 {
		p.CacheTTLHours = defaultCacheTTLHours
	}
	if p.ReuseThreshold <= 0 {
		p.ReuseThreshold = defaultReuseThreshold
	}
	if p.PollSeconds <= 0 {
		p.PollSeconds = defaultPollSeconds
	}
	if p.ContextLimit <= 0 {
		p.ContextLimit = defaultContextLimit
	}
	if p.LogRetentionDays <= 0 {
		p.LogRetentionDays = defaultLogRetentionDays
	}
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return strings.ToLower(c.Env) != "production"
}
