// Package plugins maps store backend names to constructors.
package plugins

import (
	"fmt"
	"sort"

	"github.com/sita/sidang/config"
	"github.com/sita/sidang/core/store"
)

// StoreFactory builds a persistence backend from its config section.
type StoreFactory func(cfg config.StoreConfig) (store.Store, error)

var Stores = map[string]StoreFactory{}

func RegisterStore(name string, f StoreFactory) { Stores[name] = f }

// Names lists the registered backends.
func Names() []string {
	out := make([]string, 0, len(Stores))
	for n := range Stores {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NewStore builds the backend named by cfg.Backend.
func NewStore(cfg config.StoreConfig) (store.Store, error) {
	f, ok := Stores[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown store backend %s (have %v)", cfg.Backend, Names())
	}
	return f(cfg)
}
