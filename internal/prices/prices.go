// Package prices provides spot price lookups for tracked crypto symbols.
package prices

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound means the symbol does not exist upstream. Permanent until
	// the user fixes the symbol.
	ErrNotFound = errors.New("symbol not found")

	// ErrUnavailable covers transient upstream failures (timeouts, 5xx,
	// network errors). Callers skip the current cycle and retry later.
	ErrUnavailable = errors.New("price source unavailable")
)

// Source returns the current USD spot price for a symbol.
type Source interface {
	Spot(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// TrendingCoin is one entry of the upstream trending list.
type TrendingCoin struct {
	Name          string
	Symbol        string
	MarketCapRank int
}

// Normalize canonicalizes a user-supplied symbol (CoinGecko ids are
// lowercase, e.g. "bitcoin").
func Normalize(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}
