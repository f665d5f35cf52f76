package storage

import (
	"strings"

	"github.com/vaultmind/memcore/internal/config"
	"github.com/vaultmind/memcore/internal/storage/file"
	"github.com/vaultmind/memcore/internal/storage/kv"
	"github.com/vaultmind/memcore/internal/storage/sqlstore"
	"github.com/vaultmind/memcore/pkg/types"
)

// New constructs the configured storage backend. Connection strings for the
// "sql" backend are dialect-sniffed by prefix: "postgres://" or
// "postgresql://" selects pgvector/Postgres, anything else (a file path or
// ":memory:") selects SQLite.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "file":
		return file.New(cfg.Connection), nil
	case "sql":
		dialect := sqlstore.DialectSQLite
		if strings.HasPrefix(cfg.Connection, "postgres://") || strings.HasPrefix(cfg.Connection, "postgresql://") {
			dialect = sqlstore.DialectPostgres
		}
		return sqlstore.Open(dialect, cfg.Connection)
	case "kv":
		return kv.Open(cfg.Connection)
	default:
		return nil, types.NewConfigError("unknown storage backend %q", cfg.Backend)
	}
}
