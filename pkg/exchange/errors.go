package exchange

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying every failure the trading core can surface.
// Callers match with errors.Is; the wrapped detail carries the venue-specific
// cause verbatim.
var (
	// ErrConfiguration marks missing or invalid per-exchange credentials.
	// It isolates the affected exchange and never aborts the others.
	ErrConfiguration = errors.New("exchange: configuration error")

	// ErrInvalidInput marks bad user-entered card values, rejected before
	// any network call.
	ErrInvalidInput = errors.New("exchange: invalid input")

	// ErrUnknownVenue marks an unresolvable venue-routed symbol.
	ErrUnknownVenue = errors.New("exchange: unknown venue")

	// ErrInvalidQuantity marks a size-decimal rounding violation.
	ErrInvalidQuantity = errors.New("exchange: invalid quantity")

	// ErrInvalidPrice marks a tick-rule violation on a limit price.
	ErrInvalidPrice = errors.New("exchange: invalid price")

	// ErrOrder marks a submission the exchange rejected.
	ErrOrder = errors.New("exchange: order rejected")

	// ErrTransfer marks a failed collateral move.
	ErrTransfer = errors.New("exchange: transfer failed")

	// ErrStaleData marks a snapshot older than one poll interval.
	// Display-only, never fatal.
	ErrStaleData = errors.New("exchange: stale data")
)

// ConfigErrorf wraps a formatted message in ErrConfiguration.
func ConfigErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// OrderErrorf wraps a formatted message in ErrOrder.
func OrderErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrOrder, fmt.Sprintf(format, args...))
}
