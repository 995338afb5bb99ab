package ordering

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyRequest  = errors.New("no items to reorder")
	ErrInvalidPlace  = errors.New("invalid reorder place")
	ErrOrderOverflow = errors.New("order value out of range")
)

// InvalidReferenceError reports items to move that could not be resolved.
type InvalidReferenceError struct {
	IDs    []string
	Reason string
}

func (e *InvalidReferenceError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.IDs) == 0 {
		return "invalid reference: " + e.Reason
	}
	return fmt.Sprintf("invalid reference %s: %s", strings.Join(e.IDs, ", "), e.Reason)
}

// InvalidAnchorError reports an anchor that does not exist in the target scope.
type InvalidAnchorError struct {
	ItemID string
	Reason string
}

func (e *InvalidAnchorError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("invalid anchor %s: %s", e.ItemID, e.Reason)
}

func IsValidation(err error) bool {
	var refErr *InvalidReferenceError
	var anchorErr *InvalidAnchorError
	return errors.As(err, &refErr) ||
		errors.As(err, &anchorErr) ||
		errors.Is(err, ErrEmptyRequest) ||
		errors.Is(err, ErrInvalidPlace)
}
