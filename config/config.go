package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/sita/sidang/core/factory"
	"github.com/sita/sidang/core/metrics"
	"github.com/sita/sidang/infra/notify"
)

// EnvPrefix marks environment overrides, e.g. S_HTTP__ADDR=:9000.
const EnvPrefix = "S_"

type Config struct {
	HTTP      HTTPConfig           `json:"http"`
	Store     StoreConfig          `json:"store"`
	Journal   factory.ModuleConfig `json:"journal"`
	Metrics   metrics.Config       `json:"metrics"`
	Notify    notify.Config        `json:"notify"`
	Scheduler SchedulerConfig      `json:"scheduler"`
	Logging   LoggingConfig        `json:"logging"`
}

// Load reads the config file at path, applies environment overrides and
// defaults, then validates every section. An empty path uses environment
// variables and defaults only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.HTTP.SetDefaults()
	c.Store.SetDefaults()
	c.Notify.SetDefaults()
	c.Scheduler.SetDefaults()
	c.Logging.SetDefaults()
	if c.Journal.Type == "" {
		c.Journal.Type = "jsonl"
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"http", c.HTTP.Validate},
		{"store", c.Store.Validate},
		{"notify", c.Notify.Validate},
		{"scheduler", c.Scheduler.Validate},
		{"logging", c.Logging.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.name, err)
		}
	}
	return nil
}
