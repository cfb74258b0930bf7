package supplier

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited indicates the supplier rejected the call for exceeding its
	// queries-per-second ceiling. Batch callers back off and continue.
	ErrRateLimited = errors.New("supplier: rate limited")
	// ErrNotFound indicates the requested product or variant does not exist on
	// the supplier side. Callers may fall back to an estimate.
	ErrNotFound = errors.New("supplier: not found")
	// ErrAuthFailed indicates token issuance or refresh was rejected.
	ErrAuthFailed = errors.New("supplier: authentication failed")
)

// APIError carries the supplier's own error envelope for a failed call.
type APIError struct {
	Op      string
	Code    int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("supplier %s: code %d: %s", e.Op, e.Code, e.Message)
}
