// Package sessions tracks live interview sessions so the server can drain
// them on shutdown and report how many are active.
package sessions

import (
	"context"
	"sync"
)

// Handle is what a registered session exposes to the tracker. Notify pushes a
// human-readable message to the client (delivered as an error event); Cancel
// tears the session down. Either may be nil.
type Handle struct {
	Cancel func()
	Notify func(message string)
}

type Tracker struct {
	mu     sync.Mutex
	active map[string]*entry
	wg     sync.WaitGroup
}

type entry struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]*entry)}
}

// Register adds a session and returns its unregister function. Registering a
// session ID that is already tracked evicts the previous registration, which
// counts as that session ending.
func (t *Tracker) Register(sessionID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	e := &entry{handle: h}

	t.mu.Lock()
	if t.active == nil {
		t.active = make(map[string]*entry)
	}
	old := t.active[sessionID]
	t.active[sessionID] = e
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.release(sessionID, old)
	}

	return func() { t.release(sessionID, e) }
}

func (t *Tracker) release(sessionID string, e *entry) {
	if t == nil || e == nil {
		return
	}
	e.once.Do(func() {
		t.mu.Lock()
		if t.active != nil && t.active[sessionID] == e {
			delete(t.active, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

func (t *Tracker) handles() []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Handle, 0, len(t.active))
	for _, e := range t.active {
		if e != nil {
			out = append(out, e.handle)
		}
	}
	return out
}

// NotifyAll pushes message to every active session. Used to warn clients
// before a shutdown drain.
func (t *Tracker) NotifyAll(message string) (notified int) {
	if t == nil {
		return 0
	}
	for _, h := range t.handles() {
		if h.Notify != nil {
			h.Notify(message)
			notified++
		}
	}
	return notified
}

// CancelAll tears down every active session. Called for stragglers that
// outlive the shutdown grace period.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}
	for _, h := range t.handles() {
		if h.Cancel != nil {
			h.Cancel()
			canceled++
		}
	}
	return canceled
}

// Wait blocks until every registered session has unregistered, or until ctx
// is done. It reports whether the tracker fully drained.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
