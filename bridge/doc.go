// Package bridge marshals events raised on arbitrary goroutines onto a single
// callback-execution context.
//
// A Loop owns one FIFO of work and runs it on one goroutine, so every handler
// delivered through it runs serialized with every other handler of that loop.
// A Callback is a conduit bound to one handler: Dispatch may be called from any
// goroutine, Release stops the conduit so that no queued or future event reaches
// the handler afterwards.
package bridge
