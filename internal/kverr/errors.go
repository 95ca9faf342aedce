// Package kverr defines the sentinel error kinds shared by every component that
// talks to the external store, per the substrate's error taxonomy: callers branch
// on kind (errors.Is), not on concrete type, and almost always log-and-degrade
// rather than propagate.
package kverr

import "errors"

var (
	// ErrTransient marks a storage failure that is expected to clear on the next tick:
	// timeouts, connection resets, a store that is momentarily unreachable.
	ErrTransient = errors.New("transient storage error")

	// ErrDecode marks a value that was read successfully but could not be decoded
	// into the shape the caller expected. Treated the same as "absent".
	ErrDecode = errors.New("decode error")

	// ErrLockContention names the outcome of a non-blocking lock acquire that lost
	// the race. kv.Lock.Acquire does not return it: it reports a lost race as
	// (false, nil). This is normal control flow, not a failure worth logging
	// above debug.
	ErrLockContention = errors.New("lock not acquired")
)
