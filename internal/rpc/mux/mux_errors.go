package mux

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/thriftmux/thriftmux/internal/rpc/frame"
)

// TransportError is a local transport or connection failure.
// When it is the connection error, every failed call receives the same value.
type TransportError struct {
	Msg   string
	Cause error
}

func NewTransportError(msg string, cause error) *TransportError {
	return &TransportError{Msg: msg, Cause: cause}
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *TransportError) Unwrap() error { return e.Cause }

func asTransportError(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return NewTransportError("transport failure", err)
}

// RequestTimeoutError means no response arrived in time.
// The remote side may still execute the call.
type RequestTimeoutError struct {
	Method string
	After  time.Duration
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out waiting %s to receive response", e.Method, e.After)
}

func (e *RequestTimeoutError) Timeout() bool { return true }

// MessageTooLargeError is returned for a response exceeding the frame size limit.
type MessageTooLargeError struct {
	Msg   string
	Cause *frame.TooLargeError
}

func (e *MessageTooLargeError) Error() string {
	if e.Msg == "" {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s: %s", e.Msg, e.Cause)
}

func (e *MessageTooLargeError) Unwrap() error { return e.Cause }

// ApplicationError carries an exception declared by the called method.
type ApplicationError struct {
	Method    string
	FieldID   int16
	Exception error
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("%s: remote exception: %s", e.Method, e.Exception)
}

func (e *ApplicationError) Unwrap() error { return e.Exception }

func IsApplicationError(err error) bool {
	var appErr *ApplicationError
	return errors.As(err, &appErr)
}

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsTimeout(err error) bool {
	var te *RequestTimeoutError
	return errors.As(err, &te)
}

var errCallSubmittedTwice = errors.New("call submitted twice")
