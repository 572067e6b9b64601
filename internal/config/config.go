// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `json:"host" yaml:"host"`
		Port int    `json:"port" yaml:"port"`
	} `json:"server" yaml:"server"`

	// Repository served by the HTTP API
	Repository struct {
		Path          string `json:"path" yaml:"path"`
		DefaultBranch string `json:"default_branch" yaml:"default_branch"`
		Remote        string `json:"remote" yaml:"remote"` // default clone source
		Watch         bool   `json:"watch" yaml:"watch"`
	} `json:"repository" yaml:"repository"`

	User struct {
		Name  string `json:"name" yaml:"name"`
		Email string `json:"email" yaml:"email"`
	} `json:"user" yaml:"user"`

	Content struct {
		CacheSize int  `json:"cache_size" yaml:"cache_size"`
		Compress  bool `json:"compress" yaml:"compress"`
	} `json:"content" yaml:"content"`

	Environment string `json:"environment" yaml:"environment"` // development, production
	LogLevel    string `json:"log_level" yaml:"log_level"`     // debug, info, warn, error
}

// Default returns the configuration used when no file is present
func Default() *Config {
	var cfg Config
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8420
	cfg.Repository.Path = "."
	cfg.Repository.DefaultBranch = "main"
	cfg.User.Name = "folio"
	cfg.User.Email = "folio@localhost"
	cfg.Content.CacheSize = 1000
	cfg.Content.Compress = true
	cfg.Environment = "development"
	cfg.LogLevel = "info"
	return &cfg
}

// Path returns config/config.<env>.json where env comes from FOLIO_ENV
func Path() string {
	env := os.Getenv("FOLIO_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load reads a JSON or YAML config file on top of the defaults. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Author formats the configured user as "Name <email>"
func (c *Config) Author() string {
	if c.User.Email == "" {
		return c.User.Name
	}
	return fmt.Sprintf("%s <%s>", c.User.Name, c.User.Email)
}

func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Repository.DefaultBranch == "" {
		return fmt.Errorf("repository.default_branch is required")
	}
	if c.Content.CacheSize <= 0 {
		return fmt.Errorf("content.cache_size must be positive")
	}
	return nil
}
