package appointment

import (
	"context"
	"sync"
)

// Handler receives events synchronously on the mutating goroutine.
// Handlers subscribed to EventAnyChange see the concrete kind of the
// mutation, or EventAnyChange itself for a bulk clear.
type Handler func(ctx context.Context, ev Event)

type subscription struct {
	id   uint64
	kind EventKind
	fn   Handler
}

type listenerSet struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	single map[EventKind]uint64 // ids owned by the SetOn* setters
}

func newListenerSet() *listenerSet {
	return &listenerSet{single: make(map[EventKind]uint64)}
}

func (l *listenerSet) add(kind EventKind, fn Handler) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addLocked(kind, fn)
}

func (l *listenerSet) addLocked(kind EventKind, fn Handler) uint64 {
	l.nextID++
	l.subs = append(l.subs, subscription{id: l.nextID, kind: kind, fn: fn})
	return l.nextID
}

func (l *listenerSet) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeLocked(id)
}

func (l *listenerSet) removeLocked(id uint64) {
	for i, s := range l.subs {
		if s.id == id {
			l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
			return
		}
	}
}

// replace swaps the single-slot handler for kind; nil just clears it.
func (l *listenerSet) replace(kind EventKind, fn Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id, ok := l.single[kind]; ok {
		l.removeLocked(id)
		delete(l.single, kind)
	}
	if fn != nil {
		l.single[kind] = l.addLocked(kind, fn)
	}
}

// matching returns handlers for kind followed by the catch-all handlers,
// each group in registration order.
func (l *listenerSet) matching(kind EventKind) []Handler {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Handler
	if kind != EventAnyChange {
		for _, s := range l.subs {
			if s.kind == kind {
				out = append(out, s.fn)
			}
		}
	}
	for _, s := range l.subs {
		if s.kind == EventAnyChange {
			out = append(out, s.fn)
		}
	}
	return out
}

func (l *listenerSet) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = nil
	l.single = make(map[EventKind]uint64)
}
