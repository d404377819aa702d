package coaching

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// SessionLocks serializes turn handling per session. Waiters on the same
// session are released in arrival order; distinct sessions never contend.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	token chan struct{}
	refs  int
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: map[uuid.UUID]*sessionLock{}}
}

// Acquire blocks until the session's lock is held or ctx is done. The
// returned func releases the lock and must be called exactly once.
func (l *SessionLocks) Acquire(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[sessionID]
	if !ok {
		sl = &sessionLock{token: make(chan struct{}, 1)}
		sl.token <- struct{}{}
		l.locks[sessionID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	select {
	case <-sl.token:
		var once sync.Once
		return func() {
			once.Do(func() {
				sl.token <- struct{}{}
				l.unref(sessionID, sl)
			})
		}, nil
	case <-ctx.Done():
		l.unref(sessionID, sl)
		return nil, ctx.Err()
	}
}

func (l *SessionLocks) unref(sessionID uuid.UUID, sl *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, sessionID)
	}
}

// Len reports how many sessions currently have holders or waiters.
func (l *SessionLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
