// Package stats records completed monitor episodes and answers aggregate
// queries about them. It is an optional collaborator: Open returns (nil, nil)
// when no driver is configured, and callers treat a nil Store as
// "statistics off" rather than as an error.
package stats

import (
	"errors"
	"strings"
	"time"

	logx "woltbot/pkg/logx"
)

type Config struct {
	Driver string

	// sqlite
	Path        string
	BusyTimeout time.Duration

	// postgres
	URL   string
	Table string
}

// Open initializes the configured store.
// It returns (nil, nil) if statistics are disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql":
		return openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown stats driver: " + driver)
	}
}
