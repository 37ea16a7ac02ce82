package userdir

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"linkrelay/internal/logging"
)

// ParseDSN maps a DATABASE_URL onto a dialect and driver DSN.
// postgres:// and postgresql:// select PostgreSQL; sqlite:// and file:
// select SQLite.
func ParseDSN(dsn string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return Postgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return SQLite, strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "file:"):
		return SQLite, dsn, nil
	default:
		return 0, "", fmt.Errorf("unsupported database URL scheme in %q", redact(dsn))
	}
}

// Open picks the backend once. An empty dsn selects the JSON file. A SQL
// backend that cannot be reached falls back to the JSON file with a warning.
func Open(ctx context.Context, dsn, jsonPath string, log logging.Logger) (Directory, error) {
	if dsn != "" {
		dialect, driverDSN, err := ParseDSN(dsn)
		if err == nil {
			var store *SQLStore
			store, err = OpenSQL(ctx, dialect, driverDSN)
			if err == nil {
				log.Info(ctx, "user directory ready", "backend", dialect.String())
				return store, nil
			}
		}
		log.Warn(ctx, "database unavailable, using JSON user directory", "error", err, "path", jsonPath)
	}

	store, err := OpenJSON(jsonPath)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "user directory ready", "backend", "json", "path", jsonPath)
	return store, nil
}

// redact hides credentials in a DSN for error messages.
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
