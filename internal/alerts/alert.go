// Package alerts holds one-shot price-threshold watches. An alert is read
// repeatedly by the sweep and retired the instant it fires, so a satisfied
// alert notifies at most once.
package alerts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidSpec rejects malformed alert input synchronously at
// registration; nothing invalid ever enters the registry.
var ErrInvalidSpec = errors.New("invalid alert spec")

type Direction int

const (
	Above Direction = iota
	Below
)

func (d Direction) String() string {
	switch d {
	case Above:
		return "above"
	case Below:
		return "below"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "above", ">", ">=", "over":
		return Above, nil
	case "below", "<", "<=", "under":
		return Below, nil
	default:
		return Above, fmt.Errorf("%w: direction %q (want above/below)", ErrInvalidSpec, s)
	}
}

// Alert is owned exclusively by the registry; callers only ever see copies.
type Alert struct {
	ID        uint64
	Owner     int64
	Symbol    string
	Direction Direction
	Threshold decimal.Decimal
}

// Evaluate reports whether an alert fires at the given price. Pure; the
// at-most-once property comes from the registry removing the alert on fire,
// not from hysteresis here.
func Evaluate(dir Direction, threshold, price decimal.Decimal) bool {
	switch dir {
	case Above:
		return price.GreaterThanOrEqual(threshold)
	case Below:
		return price.LessThanOrEqual(threshold)
	default:
		return false
	}
}
