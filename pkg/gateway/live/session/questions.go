package session

import (
	"sync"

	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/protocol"
)

// QuestionTracker walks an ordered question list one user turn at a time.
// The index only moves forward, one step per Advance, and is clamped at the
// list length. Question content is never inspected; a user utterance is the
// sole signal that the current question was answered.
type QuestionTracker struct {
	mu        sync.Mutex
	questions []protocol.Question
	index     int
}

func NewQuestionTracker() *QuestionTracker {
	return &QuestionTracker{}
}

// Set replaces the question list and resets the index to the first question.
func (t *QuestionTracker) Set(questions []protocol.Question) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.questions = append([]protocol.Question(nil), questions...)
	t.index = 0
}

// Advance moves past the current question. It returns the newly-active
// question while one remains; once the list is exhausted it returns false and
// the index stays pinned at the list length. Advancing an empty list is a
// no-op.
func (t *QuestionTracker) Advance() (protocol.Question, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.questions) == 0 {
		return protocol.Question{}, false
	}
	if t.index >= len(t.questions) {
		return protocol.Question{}, false
	}
	t.index++
	if t.index >= len(t.questions) {
		return protocol.Question{}, false
	}
	return t.questions[t.index], true
}

// Current returns the active question, if any.
func (t *QuestionTracker) Current() (protocol.Question, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index >= len(t.questions) {
		return protocol.Question{}, false
	}
	return t.questions[t.index], true
}

func (t *QuestionTracker) Index() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index
}

func (t *QuestionTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.questions)
}
