package billing

import (
	"context"
	"sync"
)

// StudentLocks is a keyed mutex. Holding the lock for a student id serializes
// every obligation write for that student within the process; the storage
// uniqueness constraint covers writers in other processes.
type StudentLocks struct {
	mu    sync.Mutex
	locks map[int64]*studentLock
}

type studentLock struct {
	ch   chan struct{}
	refs int
}

// NewStudentLocks creates an empty lock table.
func NewStudentLocks() *StudentLocks {
	return &StudentLocks{locks: make(map[int64]*studentLock)}
}

// Lock blocks until the lock for studentID is held or ctx ends. On success the
// returned func releases it.
func (l *StudentLocks) Lock(ctx context.Context, studentID int64) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[studentID]
	if !ok {
		sl = &studentLock{ch: make(chan struct{}, 1)}
		l.locks[studentID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
		return func() {
			<-sl.ch
			l.drop(studentID, sl)
		}, nil
	case <-ctx.Done():
		l.drop(studentID, sl)
		return nil, ctx.Err()
	}
}

func (l *StudentLocks) drop(studentID int64, sl *studentLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, studentID)
	}
}

// held returns how many callers hold or wait on a student's lock.
func (l *StudentLocks) held(studentID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sl, ok := l.locks[studentID]; ok {
		return sl.refs
	}
	return 0
}
