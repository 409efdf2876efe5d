package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

const defaultLockTimeout = 30 * time.Second

var ErrBusy = errors.New("write lock not available")

// WriteLock serialises writers to the spreadsheet.
type WriteLock struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

func NewWriteLock(timeout time.Duration) *WriteLock {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	return &WriteLock{sem: semaphore.NewWeighted(1), timeout: timeout}
}

// Acquire waits up to the lock timeout. It returns ErrBusy when the lock could
// not be taken in time or ctx ended first.
func (l *WriteLock) Acquire(ctx context.Context) error {
	if l.sem.TryAcquire(1) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return nil
}

func (l *WriteLock) Release() {
	l.sem.Release(1)
}

func (l *WriteLock) busyMessage() string {
	return fmt.Sprintf("Could not obtain lock after %g seconds.", l.timeout.Seconds())
}
