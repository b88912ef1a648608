// Package runlock provides the per-process lock that serializes sync runs
// and checkpoint restores.
package runlock

import (
	"fmt"
	"sync"
	"time"

	"github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// Lock is a non-blocking mutual exclusion lock that remembers its holder.
// A second caller is rejected immediately instead of queuing.
type Lock struct {
	mu sync.Mutex

	state  sync.Mutex
	holder string
	since  time.Time
}

// New creates an unlocked Lock.
func New() *Lock {
	return &Lock{}
}

// TryAcquire takes the lock for holder and returns the function that
// releases it. If the lock is taken the error has code SYNC_IN_PROGRESS.
func (l *Lock) TryAcquire(holder string) (func(), error) {
	if !l.mu.TryLock() {
		current, since, _ := l.Holder()
		return nil, errors.WithContext(
			errors.NewError(errors.CodeSyncInProgress,
				fmt.Sprintf("%s already running since %s", current, since.Format(time.RFC3339)), nil),
			"holder", current,
		)
	}

	l.state.Lock()
	l.holder = holder
	l.since = time.Now().UTC()
	l.state.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.state.Lock()
			l.holder = ""
			l.since = time.Time{}
			l.state.Unlock()
			l.mu.Unlock()
		})
	}, nil
}

// Holder reports who holds the lock and since when.
func (l *Lock) Holder() (string, time.Time, bool) {
	l.state.Lock()
	defer l.state.Unlock()
	return l.holder, l.since, l.holder != ""
}
