package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"minijira/internal/engine/auth"
)

// Config models minijira.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		Issuer       string  `yaml:"issuer"`
		Audience     string  `yaml:"audience"`
		TokenMinutes int     `yaml:"token_minutes"`
		LoginRate    float64 `yaml:"login_rate_per_second"`
		LoginBurst   int     `yaml:"login_burst"`
	} `yaml:"auth"`
	Log struct {
		Level string `yaml:"level"`
		Dev   bool   `yaml:"dev"`
	} `yaml:"log"`
	Seed struct {
		Departments []SeedDepartment `yaml:"departments"`
		Users       []SeedUser       `yaml:"users"`
	} `yaml:"seed"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type SeedDepartment struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type SeedUser struct {
	Email      string   `yaml:"email"`
	Password   string   `yaml:"password"`
	Name       string   `yaml:"name"`
	Department string   `yaml:"department"`
	Roles      []string `yaml:"roles"`
}

// Webhook delivers audit events to an HTTP endpoint. Events filters by event
// type; "*" or an empty list matches everything.
type Webhook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

func (w Webhook) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with mj config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Auth.TokenMinutes < 0 {
		return fmt.Errorf("config.auth.token_minutes must not be negative")
	}
	if c.Auth.LoginRate < 0 || c.Auth.LoginBurst < 0 {
		return fmt.Errorf("config.auth login rate limit must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	deps := map[string]bool{}
	for i, d := range c.Seed.Departments {
		if strings.TrimSpace(d.ID) == "" {
			return fmt.Errorf("seed department %d has empty id", i)
		}
		if len([]rune(strings.TrimSpace(d.Name))) < 2 {
			return fmt.Errorf("seed department %s name must be at least 2 characters", d.ID)
		}
		deps[d.ID] = true
	}
	for _, u := range c.Seed.Users {
		if !strings.Contains(u.Email, "@") {
			return fmt.Errorf("seed user %q has invalid email", u.Email)
		}
		if len(u.Password) < 4 {
			return fmt.Errorf("seed user %s password must be at least 4 characters", u.Email)
		}
		if u.Department == "" {
			return fmt.Errorf("seed user %s has no department", u.Email)
		}
		if len(c.Seed.Departments) > 0 && !deps[u.Department] {
			return fmt.Errorf("seed user %s references unknown department %s", u.Email, u.Department)
		}
		if _, err := auth.ParseRoleSet(u.Roles); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}
	for i, w := range c.Webhooks {
		parsed, err := url.Parse(w.URL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("webhook %d has invalid url %q", i, w.URL)
		}
		if w.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d timeout_seconds must not be negative", i)
		}
		for _, ev := range w.Events {
			if strings.TrimSpace(ev) == "" {
				return fmt.Errorf("webhook %d has empty event type", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "minijira.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Seed.Departments = nil
	cfg.Seed.Users = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api

auth:
  issuer: minijira
  audience: minijira
  token_minutes: 60
  login_rate_per_second: 1
  login_burst: 5

log:
  level: info
  dev: false

seed:
  departments:
    - id: dep_eng
      name: Engineering
    - id: dep_ops
      name: Operations
    - id: dep_sales
      name: Sales
  users:
    - email: user@demo.com
      password: Demo123!
      name: Demo User
      department: dep_eng
      roles: [USER]
    - email: manager@demo.com
      password: Demo123!
      name: Demo Manager
      department: dep_eng
      roles: [MANAGER]
    - email: admin@demo.com
      password: Demo123!
      name: Demo Admin
      department: dep_ops
      roles: [ADMIN]

webhooks: []
`
