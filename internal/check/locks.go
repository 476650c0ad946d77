package check

import (
	"context"
	"sync"
)

// monitorLocks serialises checks per monitor ID. Unlike a plain mutex map
// it lets a waiter give up when its context ends, and it forgets IDs nobody
// holds or waits for.
type monitorLocks struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newMonitorLocks() *monitorLocks {
	return &monitorLocks{slots: make(map[string]*lockSlot)}
}

// acquire blocks until id is free or ctx is done. The returned func
// releases the lock and must be called exactly once.
func (l *monitorLocks) acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	s := l.slots[id]
	if s == nil {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			l.drop(id, s)
		}, nil
	case <-ctx.Done():
		l.drop(id, s)
		return nil, ctx.Err()
	}
}

func (l *monitorLocks) drop(id string, s *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}

// held reports how many IDs currently have a holder or waiter.
func (l *monitorLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
