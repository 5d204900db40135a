package mdquery

import "errors"

var (
	// ErrInvalidState is returned by Start and Watch when the session is not in a state that allows them.
	ErrInvalidState = errors.New("mdquery: invalid state")
	// ErrNativeRegistration wraps every refusal of the query service or the callback loop.
	ErrNativeRegistration = errors.New("mdquery: native registration failed")
	ErrInvalid            = errors.New("mdquery: invalid argument")
)
