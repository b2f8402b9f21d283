package battle

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownUnit is wrapped by every UnknownUnitError.
	ErrUnknownUnit = errors.New("unknown unit")

	// ErrEngineOffline is returned by Run on an engine that was never constructed with NewEngine.
	ErrEngineOffline = errors.New("engine is offline")

	// ErrInvalidTransition marks a programmer error in the Mode state machine.
	ErrInvalidTransition = errors.New("invalid engine transition")

	// ErrIDSpaceExhausted is returned by AllocateID when every 16-bit id is live.
	ErrIDSpaceExhausted = errors.New("unit id space exhausted")
)

// FormatError reports bytecode that is too short or not hexadecimal.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed bytecode %q: %s", e.Input, e.Reason)
}

// UnknownActionError reports an action kind outside the protocol domain.
type UnknownActionError struct {
	Kind uint16
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action kind 0x%04x", e.Kind)
}

// UnknownUnitError reports an operation on an id that is not live.
type UnknownUnitError struct {
	ID UnitID
}

func (e *UnknownUnitError) Error() string {
	return fmt.Sprintf("unit %s: %v", e.ID, ErrUnknownUnit)
}

func (e *UnknownUnitError) Unwrap() error { return ErrUnknownUnit }

// TransportError wraps a failure of a Controller channel operation.
type TransportError struct {
	Controller string
	Op         string // "send-id", "receive", "send-result", "open", "close"
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("controller %s: %s: %v", e.Controller, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
