package market

import (
	"errors"
	"fmt"
)

// DataError reports that market data for a symbol could not be obtained
// or is unusable (no cache and upstream failure, short window, NaN
// inputs). Callers skip the affected pair for the current cycle.
type DataError struct {
	Op     string
	Symbol string
	Msg    string
	Err    error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Symbol, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Symbol, e.Msg)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// IsDataError reports whether err carries a DataError anywhere in its
// chain.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}
