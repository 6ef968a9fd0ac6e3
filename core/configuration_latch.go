package core

import "sync"

// configurationLatch holds a background configuration failure until the
// application tries to show a dialog. The error stays latched, and is
// reported on every show attempt, until configuration succeeds.
type configurationLatch struct {
	mu      sync.Mutex
	pending *EngageError
	reports int
}

func (l *configurationLatch) report(err *EngageError) {
	if err == nil {
		return
	}
	payload := err.clone()
	if payload.Kind == "" {
		payload.Kind = ErrorKindConfiguration
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = payload
	l.reports++
}

func (l *configurationLatch) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = nil
}

// current returns the latched error, or nil when configuration is healthy.
func (l *configurationLatch) current() *EngageError {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending.clone()
}
