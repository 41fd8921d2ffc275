// ABOUTME: Validated wrapper over the platform mutual-exclusion primitive
// ABOUTME: Normalizes timeout and error semantics so callers see typed, retryable failures

package index

import (
	"errors"
	"fmt"
	"time"

	"github.com/nainya/docsync/pkg/backend"
)

// GlobalMutex serializes read-modify-write cycles on the master index across
// concurrent executions. It is a thin wrapper whose job is uniform argument
// validation and a typed ErrLockTimeout instead of substrate-specific errors.
type GlobalMutex struct {
	inner backend.Mutex
}

// NewGlobalMutex wraps the injected platform mutex
func NewGlobalMutex(inner backend.Mutex) *GlobalMutex {
	return &GlobalMutex{inner: inner}
}

// Acquire blocks up to timeout for exclusive ownership.
// A negative timeout is rejected with ErrInvalidArgument before blocking.
func (gm *GlobalMutex) Acquire(timeout time.Duration) (backend.Handle, error) {
	if timeout < 0 {
		return nil, fmt.Errorf("%w: negative mutex timeout %v", ErrInvalidArgument, timeout)
	}
	h, err := gm.inner.Acquire(timeout)
	if err != nil {
		if errors.Is(err, backend.ErrMutexTimeout) {
			return nil, fmt.Errorf("%w: global mutex not acquired within %v", ErrLockTimeout, timeout)
		}
		return nil, err
	}
	return h, nil
}

// Release gives up ownership. A nil or foreign handle is ErrInvalidArgument.
func (gm *GlobalMutex) Release(h backend.Handle) error {
	if h == nil {
		return fmt.Errorf("%w: nil mutex handle", ErrInvalidArgument)
	}
	if err := gm.inner.Release(h); err != nil {
		if errors.Is(err, backend.ErrBadHandle) {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return err
	}
	return nil
}
