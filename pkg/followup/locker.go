package followup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/domain"
)

// Locker serializes work on one key across callers. The returned release
// function must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ExecutionLockKey is the lock key for one execution
func ExecutionLockKey(id int64) string {
	return fmt.Sprintf("followup:execution:%d", id)
}

func startLockKey(sequenceID, invoiceID int64) string {
	return fmt.Sprintf("followup:start:%d:%d", sequenceID, invoiceID)
}

func recordLockKey(id int64) string {
	return fmt.Sprintf("followup:record:%d", id)
}

// LocalLocker is an in-process Locker for single-instance deployments and tests
type LocalLocker struct {
	wait  time.Duration
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates a locker that gives up after wait; zero waits for the context
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{wait: wait, locks: make(map[string]*keyLock)}
}

// Acquire blocks until the key is free
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, kl)
		return nil, domain.NewConflictError(fmt.Sprintf("%s is locked", key))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.unref(key, kl)
		})
	}, nil
}

func (l *LocalLocker) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
