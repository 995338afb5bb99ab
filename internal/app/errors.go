package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"kanban/api/internal/lock"
	"kanban/api/internal/ordering"
)

// DomainError is returned by every use case for failures a caller can act
// on. Status is the HTTP status a transport would answer with.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func notFound(what, id string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", what+" not found", map[string]any{"id": id})
}

// lookupError turns a missing row into NOT_FOUND and leaves other errors alone.
func lookupError(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(what, id)
	}
	return err
}

// orderingError maps planner failures onto domain errors.
func orderingError(err error) error {
	if err == nil {
		return nil
	}
	var refErr *ordering.InvalidReferenceError
	if errors.As(err, &refErr) {
		return domainError(http.StatusBadRequest, "INVALID_REFERENCE", refErr.Error(), map[string]any{"ids": refErr.IDs})
	}
	var anchorErr *ordering.InvalidAnchorError
	if errors.As(err, &anchorErr) {
		return domainError(http.StatusBadRequest, "INVALID_ANCHOR", anchorErr.Error(), map[string]any{"itemId": anchorErr.ItemID})
	}
	switch {
	case errors.Is(err, ordering.ErrEmptyRequest), errors.Is(err, ordering.ErrInvalidPlace):
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, ordering.ErrOrderOverflow):
		return domainError(http.StatusConflict, "ORDER_EXHAUSTED", "scope must be rebalanced", nil)
	case errors.Is(err, lock.ErrTimeout):
		return domainError(http.StatusServiceUnavailable, "SCOPE_BUSY", err.Error(), nil)
	}
	return err
}
