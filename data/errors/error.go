package errors

import (
	"fmt"

	"github.com/mwantia/mdquery/data"
)

// newError wraps kind, so errors.Is keeps working, and appends the cause if any.
func newError(kind error, cause error, format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if cause != nil {
		return fmt.Errorf("%w: %s: %w", kind, text, cause)
	}

	return fmt.Errorf("%w: %s", kind, text)
}

func SourceUnavailable(err error, name string) error {
	return newError(data.ErrSourceUnavailable, err, "source '%s'", name)
}

func SourceUnsupported(name string, capability string) error {
	return newError(data.ErrSourceUnsupported, nil, "source '%s' lacks capability '%s'", name, capability)
}

func SourceClosed(name string) error {
	return newError(data.ErrSourceClosed, nil, "source '%s'", name)
}

func MalformedAddress(err error, address string) error {
	return newError(data.ErrMalformedAddress, err, "address '%s'", address)
}

func UnknownScheme(address string) error {
	return newError(data.ErrUnknownScheme, nil, "address '%s'", address)
}
