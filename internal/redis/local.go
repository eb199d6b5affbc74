package redisclient

import (
	"context"
	"sync"
)

type localPhysicianLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker returns an in-process Locker for single instance deployments.
// Waiting for a held lock honours ctx.
func NewLocalLocker() Locker {
	return &localPhysicianLocker{slots: make(map[string]chan struct{})}
}

func (l *localPhysicianLocker) sem(physicianID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[physicianID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[physicianID] = ch
	}
	return ch
}

func (l *localPhysicianLocker) WithPhysicianLock(ctx context.Context, physicianID string, fn func(ctx context.Context) error) error {
	ch := l.sem(physicianID)

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ch }()

	return fn(ctx)
}
