package sqlite

import (
	"fmt"

	"github.com/openbridge/openbridge-backend/pkg/kv"
)

func init() {
	kv.RegisterBackend(kv.BackendSQLite, func(cfg kv.Config) (kv.Store, error) {
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite path is required when backend is 'sqlite'")
		}
		return New(cfg.SQLitePath)
	})
}
