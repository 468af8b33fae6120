package backend

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupported = errors.New("operation not supported by this backend")
	ErrNotFound    = errors.New("not found")
	ErrBadResponse = errors.New("malformed backend response")
)

// StatusError is a non-success answer of the backend. Its message is the body
// the backend sent.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: backend status %d", e.Op, e.Status)
	}
	return body
}

// TransportError means the request never got an answer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PartialReplaceError reports an item replacement that removed the old items
// but did not store the new ones. The order is left without items until the
// replacement is retried.
type PartialReplaceError struct {
	OrderID int64
	Deleted int64
	Cause   error
}

func (e *PartialReplaceError) Error() string {
	return fmt.Sprintf("order %d: %d items removed but new items not stored: %v", e.OrderID, e.Deleted, e.Cause)
}

func (e *PartialReplaceError) Unwrap() error { return e.Cause }

func unsupported(op string) error {
	return fmt.Errorf("%s: %w", op, ErrUnsupported)
}
