package bridge

import "errors"

var (
	ErrLoopClosed = errors.New("bridge: loop closed")
	ErrInvalid    = errors.New("bridge: invalid argument")
)
