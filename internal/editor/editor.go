// Package editor holds the modal forms of the board: order creation and
// editing, line items, expenses, invoice upload and quote email. A form
// loads what it needs on Open, keeps a local draft, validates it without
// contacting the backend and submits it in one call.
package editor

import (
	"errors"
	"fmt"

	"gitlab.ozon.dev/qwestard/dispatch/internal/backend"
)

// API is the part of the backend the forms use.
type API interface {
	backend.Lookups
	backend.Orders
	backend.Documents
	backend.Finance
}

var ErrNotReady = errors.New("form did not load, reopen it")

// ValidationError is a draft the form refuses to submit.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// State is shared by every form. Err is the inline message shown under the
// form; a form whose Open failed stays not Ready until it is opened again.
type State struct {
	Ready  bool   `json:"ready"`
	Busy   bool   `json:"busy"`
	Closed bool   `json:"closed"`
	Err    string `json:"error,omitempty"`

	OnDone func() `json:"-"`
}

func (s *State) opened(err error) error {
	s.Closed, s.Busy = false, false
	if err != nil {
		s.Ready, s.Err = false, err.Error()
		return err
	}
	s.Ready, s.Err = true, ""
	return nil
}

func (s *State) begin() error {
	if !s.Ready {
		s.Err = ErrNotReady.Error()
		return ErrNotReady
	}
	s.Busy, s.Err = true, ""
	return nil
}

func (s *State) fail(err error) error {
	s.Busy = false
	s.Err = err.Error()
	return err
}

func (s *State) done() {
	s.Busy, s.Closed = false, true
	if s.OnDone != nil {
		s.OnDone()
	}
}
