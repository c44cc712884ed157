// Package store keeps AuthRequests between the authorize and callback steps.
//
// Three backends implement domain.StateStore:
//   - memory: a mutex-guarded map, correct only when one process serves both steps
//   - sqlite: a database file shared by every instance that mounts it
//   - cookie: a signed ticket carried by the browser, no server-side record
//
// All of them enforce single use: a consumed state reports domain.ErrStateConsumed
// until it would have expired anyway.
package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cmsrelay/internal/config"
	"github.com/cmsrelay/internal/constants"
	"github.com/cmsrelay/internal/domain"
)

// New builds the store selected by cfg.State.Store
func New(cfg *config.Config, logger *slog.Logger) (domain.StateStore, error) {
	switch cfg.State.Store {
	case constants.StoreMemory:
		logger.Info("using in-memory state store", "ttl", cfg.State.TTL)
		return NewMemoryStore(), nil
	case constants.StoreSQLite:
		logger.Info("using sqlite state store", "path", cfg.State.DatabasePath, "ttl", cfg.State.TTL)
		return NewSQLiteStore(cfg.State.DatabasePath)
	case constants.StoreCookie:
		logger.Info("using signed cookie state store", "ttl", cfg.State.TTL)
		return NewCookieStore([]byte(cfg.State.SigningSecret))
	default:
		return nil, fmt.Errorf("unknown state store %q", cfg.State.Store)
	}
}

// clock is overridden in tests
type clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
