package journal

import (
	"fmt"

	"github.com/sita/sidang/core/factory"
)

var registry = factory.NewRegistry[Store]()

// FileConf configures the file backed stores.
type FileConf struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

func init() {
	_ = registry.Register("nop", func(map[string]any) (Store, error) { return NopStore{}, nil })
	_ = registry.Register("jsonl", func(conf map[string]any) (Store, error) {
		c := FileConf{Path: "data/runs.jsonl", MaxSizeMB: 10, MaxBackups: 5}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups)
	})
	_ = registry.Register("sqlite", func(conf map[string]any) (Store, error) {
		c := FileConf{Path: "data/runs.db"}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSQLiteStore(c.Path)
	})
}

// New builds the journal store named by cfg.Type. An empty type disables
// the journal.
func New(cfg factory.ModuleConfig) (Store, error) {
	if cfg.Type == "" {
		return NopStore{}, nil
	}
	s, err := registry.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return s, nil
}
