package ws

import (
	"sync"

	"github.com/c-pro/geche"
)

type refMutex struct {
	sync.Mutex
	refs int // guarded by the userLocks map lock
}

// userLocks serialises presence transitions of one user. Going online and going
// offline both span several storage calls, and a user reconnecting in a new tab
// must not interleave with the teardown of the old one.
type userLocks struct {
	locks *geche.Locker[string, *refMutex]
}

func newUserLocks() *userLocks {
	return &userLocks{
		locks: geche.NewLocker[string, *refMutex](geche.NewMapCache[string, *refMutex]()),
	}
}

// Lock blocks until the user's lock is held and returns the function releasing it.
func (l *userLocks) Lock(userID string) func() {
	tx := l.locks.Lock()
	m, err := tx.Get(userID)
	if err != nil {
		m = &refMutex{}
		tx.Set(userID, m)
	}
	m.refs++
	tx.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		tx := l.locks.Lock()
		defer tx.Unlock()
		m.refs--
		if m.refs == 0 {
			_ = tx.Del(userID)
		}
	}
}

func (l *userLocks) len() int {
	tx := l.locks.RLock()
	defer tx.Unlock()
	return tx.Len()
}
