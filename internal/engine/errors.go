package engine

import (
	"errors"
	"fmt"
)

// ExecutionError reports an order that failed after clearing every
// admission gate. Locks are released and overtrading counters stay
// where they were: a failed order is not a trade.
type ExecutionError struct {
	Symbol string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("order execution failed for %s: %v", e.Symbol, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsExecutionError reports whether err carries an ExecutionError
// anywhere in its chain.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// FatalStateError reports a position-safety invariant violation, such
// as an entry left on the venue without a stop loss. The gate refuses
// new trades until a human clears it; analysis and position tracking
// keep running.
type FatalStateError struct {
	Symbol string
	Detail string
}

func (e *FatalStateError) Error() string {
	return fmt.Sprintf("fatal state for %s: %s", e.Symbol, e.Detail)
}

// IsFatalStateError reports whether err carries a FatalStateError
// anywhere in its chain.
func IsFatalStateError(err error) bool {
	var fe *FatalStateError
	return errors.As(err, &fe)
}
