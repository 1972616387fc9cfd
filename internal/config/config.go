package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the workspace.
const FileName = "insightline.yml"

// Notify modes.
const (
	NotifyQueue   = "queue"
	NotifyWebhook = "webhook"
	NotifyNone    = "none"
)

// Config models insightline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
		// DevAuth accepts the X-Actor-Id header without credentials.
		DevAuth bool `yaml:"dev_auth"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Lifecycle struct {
		Platforms       []string `yaml:"platforms"`
		BulkConcurrency int      `yaml:"bulk_concurrency"`
	} `yaml:"lifecycle"`
	Events struct {
		Journal bool `yaml:"journal"`
		Redis   struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Channel  string `yaml:"channel"`
		} `yaml:"redis"`
	} `yaml:"events"`
	Notify struct {
		Mode       string `yaml:"mode"`
		WebhookURL string `yaml:"webhook_url"`
		Secret     string `yaml:"secret"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"notify"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Auth     struct {
		Roles map[string]Role `yaml:"roles"`
	} `yaml:"auth"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

type Role struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// WebhookConfig is an outbound subscription to journal events.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with il config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if len(c.Lifecycle.Platforms) == 0 {
		return fmt.Errorf("config.lifecycle.platforms is required")
	}
	for _, p := range c.Lifecycle.Platforms {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("config.lifecycle.platforms contains an empty platform")
		}
	}
	if c.Lifecycle.BulkConcurrency < 0 {
		return fmt.Errorf("config.lifecycle.bulk_concurrency must be >= 0")
	}
	switch c.Notify.Mode {
	case NotifyQueue, NotifyNone, "":
	case NotifyWebhook:
		if err := validURL(c.Notify.WebhookURL); err != nil {
			return fmt.Errorf("config.notify.webhook_url: %w", err)
		}
	default:
		return fmt.Errorf("config.notify.mode must be one of queue, webhook, none")
	}
	if c.Notify.Timeout != "" {
		if d, err := time.ParseDuration(c.Notify.Timeout); err != nil || d <= 0 {
			return fmt.Errorf("config.notify.timeout must be a positive duration")
		}
	}
	for i, hook := range c.Webhooks {
		if err := validURL(hook.URL); err != nil {
			return fmt.Errorf("config.webhooks[%d].url: %w", i, err)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	for roleID, role := range c.Auth.Roles {
		if strings.TrimSpace(roleID) == "" {
			return fmt.Errorf("config.auth.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if strings.TrimSpace(perm) == "" || strings.ContainsAny(perm, " \t") {
				return fmt.Errorf("role %s has invalid permission %q", roleID, perm)
			}
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config.log.level must be one of trace, debug, info, warn, error")
	}
	return nil
}

func validURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	return nil
}

// NotifyTimeout returns the parsed notifier timeout, 0 when unset.
func (c *Config) NotifyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Notify.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// RolePermissions flattens Auth.Roles for storage.
func (c *Config) RolePermissions() map[string][]string {
	out := make(map[string][]string, len(c.Auth.Roles))
	for id, role := range c.Auth.Roles {
		out[id] = append([]string(nil), role.Permissions...)
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("config: default template: %v", err))
	}
	return &cfg
}

// FromYAML parses config from raw YAML bytes over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	// Lists and maps present in the file replace the defaults wholesale.
	cfg.Lifecycle.Platforms = nil
	cfg.Auth.Roles = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	def := Default()
	if cfg.Lifecycle.Platforms == nil {
		cfg.Lifecycle.Platforms = def.Lifecycle.Platforms
	}
	if cfg.Auth.Roles == nil {
		cfg.Auth.Roles = def.Auth.Roles
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

// YAML renders the config back to YAML.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  dev_auth: false

storage:
  path: ""

lifecycle:
  platforms: [linkedin, x]
  bulk_concurrency: 8

events:
  journal: true
  redis:
    addr: ""
    channel: insightline.events

notify:
  mode: queue
  webhook_url: ""
  timeout: 5s

webhooks: []

auth:
  roles:
    admin:
      description: "Full access"
      permissions: ["*"]
    reviewer:
      description: "Reviews insights"
      permissions:
        - insight.read
        - insight.submit_for_review
        - insight.approve
        - insight.reject
        - insight.archive
        - events.read
    editor:
      description: "Writes and revises insights"
      permissions:
        - insight.read
        - insight.create
        - insight.edit
        - insight.submit_for_review
        - insight.restore
    operator:
      description: "Handles pipeline failures"
      permissions:
        - insight.read
        - insight.mark_failed
        - insight.retry
        - insight.archive
        - insight.delete
        - events.read
    viewer:
      description: "Read-only"
      permissions: [insight.read, events.read]

log:
  level: info
  format: text
`
