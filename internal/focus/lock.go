package focus

import "sync"

// Lock is the process-wide "force overlay active" cell. It is a level
// signal: true while at least one global force rule is live, false
// otherwise, with no reference counting. The overlay arbiter is the single
// writer; every interactive component reads it (or watches transitions) and
// must swallow all key handling while it is set.
type Lock struct {
	mu       sync.Mutex
	active   bool
	watchers []func(bool)
}

func NewLock() *Lock {
	return &Lock{}
}

// Active reports the current level.
func (l *Lock) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Set updates the level. Watchers fire only on transitions, outside the
// internal mutex so they may re-read the lock.
func (l *Lock) Set(active bool) {
	l.mu.Lock()
	if l.active == active {
		l.mu.Unlock()
		return
	}
	l.active = active
	watchers := make([]func(bool), len(l.watchers))
	copy(watchers, l.watchers)
	l.mu.Unlock()

	for _, w := range watchers {
		w(active)
	}
}

// Watch registers a transition callback. Registration is permanent for the
// lifetime of the lock.
func (l *Lock) Watch(fn func(bool)) {
	l.mu.Lock()
	l.watchers = append(l.watchers, fn)
	l.mu.Unlock()
}
