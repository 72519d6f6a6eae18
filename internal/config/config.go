package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models pactline.yml.
type Config struct {
	Backend struct {
		BaseURL       string        `yaml:"base_url"`
		Timeout       time.Duration `yaml:"timeout"`
		UploadTimeout time.Duration `yaml:"upload_timeout"`
	} `yaml:"backend"`
	Cache struct {
		Size      int           `yaml:"size"`
		Freshness time.Duration `yaml:"freshness"`
	} `yaml:"cache"`
	Chat struct {
		Retention int           `yaml:"retention"`
		Store     string        `yaml:"store"`
		RedisURL  string        `yaml:"redis_url"`
		RedisTTL  time.Duration `yaml:"redis_ttl"`
	} `yaml:"chat"`
	Upload struct {
		MaxBytes     int64    `yaml:"max_bytes"`
		ContentTypes []string `yaml:"content_types"`
	} `yaml:"upload"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
	Server struct {
		Addr         string        `yaml:"addr"`
		BasePath     string        `yaml:"base_path"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"server"`
}

const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pact config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("config.backend.base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config.backend.base_url must be an http(s) url")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("config.backend.timeout must be positive")
	}
	if c.Backend.UploadTimeout < c.Backend.Timeout {
		return fmt.Errorf("config.backend.upload_timeout must be at least backend.timeout")
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("config.cache.size must be positive")
	}
	if c.Cache.Freshness <= 0 {
		return fmt.Errorf("config.cache.freshness must be positive")
	}
	if c.Chat.Retention <= 0 {
		return fmt.Errorf("config.chat.retention must be positive")
	}
	switch c.Chat.Store {
	case StoreSQLite:
	case StoreRedis:
		if c.Chat.RedisURL == "" {
			return fmt.Errorf("config.chat.redis_url is required when chat.store is redis")
		}
	default:
		return fmt.Errorf("config.chat.store must be 'sqlite' or 'redis'")
	}
	if c.Chat.RedisTTL < 0 {
		return fmt.Errorf("config.chat.redis_ttl must not be negative")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("config.upload.max_bytes must be positive")
	}
	if len(c.Upload.ContentTypes) == 0 {
		return fmt.Errorf("config.upload.content_types is required")
	}
	for _, ct := range c.Upload.ContentTypes {
		if !strings.Contains(ct, "/") {
			return fmt.Errorf("upload content type %q is not a media type", ct)
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("config.log.format must be 'text' or 'json'")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.PollInterval < 0 {
		return fmt.Errorf("config.server.poll_interval must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "pactline.yml")
}

// GenerateDefault returns default config YAML pointing at baseURL.
func GenerateDefault(baseURL string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return fmt.Sprintf(defaultTemplate, baseURL)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault is LoadOptional falling back to Default.
func LoadOrDefault(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil || cfg != nil {
		return cfg, err
	}
	return Default(), nil
}

const DefaultBaseURL = "http://127.0.0.1:8000"

const defaultTemplate = `backend:
  base_url: %s
  timeout: 10s
  upload_timeout: 2m
cache:
  size: 128
  freshness: 2m
chat:
  retention: 5
  store: sqlite
  redis_url: ""
  redis_ttl: 168h
upload:
  max_bytes: 10485760
  content_types:
    - application/pdf
log:
  level: info
  format: text
  file: ""
server:
  addr: 127.0.0.1:8080
  base_path: /v0
  poll_interval: 5s
`

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(""))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Sections left out of
// the document keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
