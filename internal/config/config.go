package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL      = "https://api.realdevsquad.com"
	defaultTaskLinkBase = "https://status.realdevsquad.com/tasks"
	defaultTimezone     = "Asia/Kolkata"
	defaultPageSize     = 100
	defaultMaxHops      = 5
	defaultHTTPTimeout  = 15
	defaultMaxSpanDays  = 3660
	defaultRefreshCron  = "*/15 * * * *"
)

// defaultEntryTypes is the log service filter used when none is configured.
// Extension and task requests only count toward finding the user's page.
var defaultEntryTypes = []string{"task", "extensionRequests", "taskRequests", "REQUEST_CREATED"}

// RetryConfig bounds retries of a single upstream request.
type RetryConfig struct {
	MaxRetries  int `yaml:"max_retries" json:"max_retries"`
	BaseDelayMs int `yaml:"base_delay_ms" json:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms" json:"max_delay_ms"`
}

// BaseDelay returns the initial backoff interval.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff ceiling.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// Config is the configuration object handed to the aggregation entry point.
// Nothing in the engine reads request state from anywhere else.
type Config struct {
	// BaseURL is the root of the upstream log and task services.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Timezone is the IANA timezone whose local midnight defines a day key.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Live enables fetching logs and task details from the upstream
	// services. When false only caller-supplied baseline entries are merged.
	Live bool `yaml:"live" json:"live"`

	PageSize int `yaml:"page_size" json:"page_size"`
	MaxHops  int `yaml:"max_hops" json:"max_hops"`

	// EntryTypes is sent comma-joined as the log service "type" filter.
	EntryTypes []string `yaml:"entry_types" json:"entry_types"`

	// EnrichConcurrency caps in-flight task detail requests. Zero, the
	// default, issues every detail request of a batch at once.
	EnrichConcurrency int `yaml:"enrich_concurrency" json:"enrich_concurrency"`

	// IncludeAssignedTasks also pulls tasks by assignee id and username
	// and treats them as authoritative detail.
	IncludeAssignedTasks bool `yaml:"include_assigned_tasks" json:"include_assigned_tasks"`

	// TaskLinkBase is used to build a task link when the detail record
	// carries no external issue link.
	TaskLinkBase string `yaml:"task_link_base" json:"task_link_base"`

	HTTPTimeoutSeconds int         `yaml:"http_timeout_seconds" json:"http_timeout_seconds"`
	Retry              RetryConfig `yaml:"retry" json:"retry"`

	// BaselineURL optionally points at an iCalendar feed that seeds the
	// baseline layer when the caller supplies none.
	BaselineURL string `yaml:"baseline_url,omitempty" json:"baseline_url,omitempty"`

	// RefreshCron is a cron-style schedule used by session refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// MaxSpanDays caps how many days a single range may expand to.
	MaxSpanDays int `yaml:"max_span_days" json:"max_span_days"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            defaultBaseURL,
		Timezone:           defaultTimezone,
		Live:               true,
		PageSize:           defaultPageSize,
		MaxHops:            defaultMaxHops,
		EntryTypes:         append([]string(nil), defaultEntryTypes...),
		TaskLinkBase:       defaultTaskLinkBase,
		HTTPTimeoutSeconds: defaultHTTPTimeout,
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelayMs: 100,
			MaxDelayMs:  2000,
		},
		RefreshCron: defaultRefreshCron,
		MaxSpanDays: defaultMaxSpanDays,
		LogLevel:    "info",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.MaxHops <= 0 {
		c.MaxHops = defaultMaxHops
	}
	if len(c.EntryTypes) == 0 {
		c.EntryTypes = append([]string(nil), defaultEntryTypes...)
	}
	if c.EnrichConcurrency < 0 {
		c.EnrichConcurrency = 0
	}
	c.TaskLinkBase = strings.TrimRight(strings.TrimSpace(c.TaskLinkBase), "/")
	if c.TaskLinkBase == "" {
		c.TaskLinkBase = defaultTaskLinkBase
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = defaultHTTPTimeout
	}
	// MaxRetries of zero is a valid "no retries" setting.
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = 0
	}
	if c.Retry.BaseDelayMs <= 0 {
		c.Retry.BaseDelayMs = 100
	}
	if c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		c.Retry.MaxDelayMs = c.Retry.BaseDelayMs
	}
	c.BaselineURL = strings.TrimSpace(c.BaselineURL)
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.MaxSpanDays <= 0 {
		c.MaxSpanDays = defaultMaxSpanDays
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// HTTPTimeout returns the per-request client timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Location resolves Timezone, falling back to time.Local when it is unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled on top of the defaults and
//     normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".statuscal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
