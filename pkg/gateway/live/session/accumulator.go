package session

import (
	"strings"
	"sync"
	"time"
)

const (
	defaultFlushWords    = 100
	defaultFlushInterval = 2 * time.Second
)

// Accumulator buffers small text deltas from the provider and releases them
// as fewer, larger chunks. A chunk is released when either the buffered
// word count reaches the threshold or the hold interval since the last
// release has elapsed. Both conditions are checked on every Add; the session
// additionally runs a ticker that calls FlushIfStale so a quiet stream still
// drains (the opportunistic-only check would otherwise strand a partial
// buffer forever).
type Accumulator struct {
	mu        sync.Mutex
	text      strings.Builder
	minWords  int
	maxHold   time.Duration
	lastFlush time.Time
	now       func() time.Time
}

func NewAccumulator(minWords int, maxHold time.Duration, now func() time.Time) *Accumulator {
	if minWords <= 0 {
		minWords = defaultFlushWords
	}
	if maxHold <= 0 {
		maxHold = defaultFlushInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Accumulator{
		minWords:  minWords,
		maxHold:   maxHold,
		now:       now,
		lastFlush: now(),
	}
}

// Add appends a delta and returns a chunk when a flush condition is met.
// The returned chunk is trimmed; the second return reports whether a chunk
// was released.
func (a *Accumulator) Add(delta string) (string, bool) {
	if delta == "" {
		return "", false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.text.WriteString(delta)

	content := a.text.String()
	if len(strings.Fields(content)) >= a.minWords {
		return a.flushLocked()
	}
	if a.now().Sub(a.lastFlush) >= a.maxHold {
		return a.flushLocked()
	}
	return "", false
}

// Flush drains the buffer unconditionally.
func (a *Accumulator) Flush() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked()
}

// FlushIfStale drains the buffer only when it is non-empty and the hold
// interval has elapsed. Called from the session's flush ticker.
func (a *Accumulator) FlushIfStale() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.text.Len() == 0 {
		return "", false
	}
	if a.now().Sub(a.lastFlush) < a.maxHold {
		return "", false
	}
	return a.flushLocked()
}

func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text.Len()
}

func (a *Accumulator) flushLocked() (string, bool) {
	chunk := strings.TrimSpace(a.text.String())
	a.text.Reset()
	a.lastFlush = a.now()
	if chunk == "" {
		return "", false
	}
	return chunk, true
}
