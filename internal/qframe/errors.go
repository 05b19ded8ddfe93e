package qframe

import (
	"fmt"

	"github.com/tobgu/qcache-go/internal/apperr"
)

// MalformedQueryError wraps apperr.MalformedQuery with the human-readable
// reason and the offending sub-AST, per spec.md §4.3.7.
type MalformedQueryError struct {
	Reason string
	Sub    any
}

func (e *MalformedQueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Sub)
}

func (e *MalformedQueryError) Unwrap() error { return apperr.MalformedQuery }

func malformed(reason string, sub any) error {
	return &MalformedQueryError{Reason: reason, Sub: sub}
}
