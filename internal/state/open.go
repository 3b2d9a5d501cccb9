package state

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "bikewatch/pkg/logx"
)

// Store is the persistence API for the seen-identity set.
//
// The set only ever grows: Save persists the union the engine computed and
// never removes identities on its own.
type Store interface {
	// Load returns the previously persisted set. A store that has never been
	// written returns an empty set and no error.
	Load(ctx context.Context) (map[string]struct{}, error)
	Save(ctx context.Context, set map[string]struct{}) error
	Close() error
}

// Config configures the store.
//
// Driver values:
//   - "file" (default): JSON array of identity strings
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown state driver: " + driver)
	}
}
