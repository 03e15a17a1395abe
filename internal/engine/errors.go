package engine

import (
	"errors"
	"fmt"

	"github.com/optionlab/stratcalc/internal/strategy"
)

// Sentinels for the failure categories the pipeline can report. Callers
// match with errors.Is; batch callers treat all of them as per-symbol
// outcomes, never as reasons to stop the batch.
var (
	// ErrDataUnavailable covers failed or timed-out quote and chain
	// fetches. Recoverable: retry later or skip the symbol.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrNoLiquidContracts means filtering left no candidates on a side.
	// The calculator relaxes the moneyness band once before giving up.
	ErrNoLiquidContracts = errors.New("no liquid contracts")

	// ErrStrikeSelectionFailed means no usable strike existed even after
	// the band relaxation.
	ErrStrikeSelectionFailed = errors.New("strike selection failed")

	// ErrInvalidInput marks malformed requests: unknown strategy type,
	// non-positive price, non-positive DTE. Never coerced to a default.
	ErrInvalidInput = errors.New("invalid strategy input")
)

// DataError wraps a provider failure with the operation that hit it.
type DataError struct {
	Symbol string
	Op     string
	Err    error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Symbol, e.Err)
}

// Unwrap exposes both the sentinel and the provider's own error chain.
func (e *DataError) Unwrap() []error {
	return []error{ErrDataUnavailable, e.Err}
}

// SelectionError reports which side of which strategy could not be filled.
type SelectionError struct {
	Symbol   string
	Strategy strategy.Type
	Side     string
	Reason   string
	Err      error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("%s %s (%s side): %s", e.Strategy, e.Symbol, e.Side, e.Reason)
}

func (e *SelectionError) Unwrap() error { return e.Err }

// invalidf builds an ErrInvalidInput with call-site context.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
