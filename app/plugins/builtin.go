package plugins

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sita/sidang/config"
	"github.com/sita/sidang/core/store"
	"github.com/sita/sidang/infra/store/postgres"
	"github.com/sita/sidang/infra/store/sqlite"
)

func init() {
	RegisterStore(config.BackendSQLite, func(cfg config.StoreConfig) (store.Store, error) {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create %s: %w", dir, err)
			}
		}
		return sqlite.Open(cfg.Path)
	})
	RegisterStore(config.BackendPostgres, func(cfg config.StoreConfig) (store.Store, error) {
		return postgres.Open(cfg.DSN)
	})
}
