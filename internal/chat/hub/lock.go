package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrLockTimeout registry lock could not be acquired in time
	ErrLockTimeout = errors.New("registry lock timeout")
	// ErrConnClosed handle is no longer open
	ErrConnClosed = errors.New("connection closed")
	// ErrSendTimeout handle did not accept the frame in time
	ErrSendTimeout = errors.New("send timeout")
)

const maxReaders = 1 << 20

// rwLock readers-writer lock with bounded acquisition
// writer 取得全部權重, reader 取得 1; semaphore 為 FIFO, 等待中的 writer 會擋住之後的 reader
type rwLock struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

func newRWLock(timeout time.Duration) *rwLock {
	return &rwLock{sem: semaphore.NewWeighted(maxReaders), timeout: timeout}
}

func (l *rwLock) acquire(ctx context.Context, n int64) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.sem.Acquire(ctx, n); err != nil {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return nil
}

func (l *rwLock) Lock(ctx context.Context) error {
	return l.acquire(ctx, maxReaders)
}

func (l *rwLock) Unlock() {
	l.sem.Release(maxReaders)
}

func (l *rwLock) RLock(ctx context.Context) error {
	return l.acquire(ctx, 1)
}

func (l *rwLock) RUnlock() {
	l.sem.Release(1)
}
