package sampler

import (
	"errors"
	"fmt"
)

// ErrAllTilesFailed aggregates a request in which no tile produced data
// after retries were exhausted. Partial failures never raise it.
var ErrAllTilesFailed = errors.New("all tile fetches failed")

// InvalidParamsError names the offending sampling parameter. Raised before
// any adapter call is made.
type InvalidParamsError struct {
	Field  string
	Reason string
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid sampling parameter %q: %s", e.Field, e.Reason)
}
