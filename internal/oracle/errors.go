package oracle

import (
	"errors"
	"fmt"
)

// ErrUnavailable indicates the gateway cannot be used at all: no API key or
// provider configuration was found. Distinct from transient transport errors.
var ErrUnavailable = errors.New("oracle unavailable: no API key configured")

// OracleError wraps a transport, timeout, or non-2xx failure from the
// external generative service. The gateway performs no retries beyond the
// provider client's own 429 handling; retry policy belongs to callers.
type OracleError struct {
	Provider string
	Status   int // HTTP status when applicable, 0 otherwise
	Err      error
}

func (e *OracleError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("oracle %s request failed with status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("oracle %s request failed: %v", e.Provider, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// IsOracleError reports whether err is a hard oracle failure (either an
// OracleError or ErrUnavailable).
func IsOracleError(err error) bool {
	var oe *OracleError
	return errors.As(err, &oe) || errors.Is(err, ErrUnavailable)
}
