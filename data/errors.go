package data

import (
	"errors"
	"sync"
)

// Standard errors that sources and the engine should use.
var (
	// Record errors
	ErrNotExist = errors.New("mdquery: item does not exist")
	ErrExist    = errors.New("mdquery: item already exists")
	ErrInvalid  = errors.New("mdquery: invalid argument")

	// Source errors
	ErrSourceUnsupported = errors.New("mdquery: source capability unsupported")
	ErrSourceUnavailable = errors.New("mdquery: source unavailable")
	ErrSourceClosed      = errors.New("mdquery: source already closed")

	// Address errors
	ErrMalformedAddress = errors.New("mdquery: malformed source address")
	ErrUnknownScheme    = errors.New("mdquery: unknown source address scheme")
)

// Errors collects errors from multi-step cleanup paths.
type Errors struct {
	mu     sync.RWMutex
	errors []error
}

func (e *Errors) Add(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = append(e.errors, err)
}

func (e *Errors) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = nil
}

func (e *Errors) Errors() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.errors) == 0 {
		return nil
	}

	return errors.Join(e.errors...)
}
