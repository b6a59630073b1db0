// Package storage persists per-user tracked data: watchlists, portfolio
// positions and auto-reply keywords. Alerts and recurring jobs deliberately
// never touch this layer; they are process-memory only.
package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"cryptotracker/pkg/logx"
)

type Position struct {
	Symbol string
	Amount decimal.Decimal
}

// Store is the minimal persistence API used by the command handlers.
type Store interface {
	AddWatch(ctx context.Context, userID int64, symbol string) (added bool, err error)
	RemoveWatch(ctx context.Context, userID int64, symbol string) (removed bool, err error)
	Watchlist(ctx context.Context, userID int64) ([]string, error)

	AddPosition(ctx context.Context, userID int64, symbol string, amount decimal.Decimal) error
	Portfolio(ctx context.Context, userID int64) ([]Position, error)

	SetAutoReply(ctx context.Context, userID int64, keyword, reply string) error
	RemoveAutoReply(ctx context.Context, userID int64, keyword string) (removed bool, err error)
	AutoReplies(ctx context.Context, userID int64) (map[string]string, error)

	Close() error
}

type Config struct {
	// Driver is "sqlite" (default) or "memory" (sqlite without a file,
	// used by tests and when no path is configured).
	Driver      string
	Path        string
	BusyTimeout int // milliseconds
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
