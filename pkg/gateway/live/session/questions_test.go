package session

import (
	"testing"

	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/protocol"
)

func questionList(texts ...string) []protocol.Question {
	qs := make([]protocol.Question, 0, len(texts))
	for i, txt := range texts {
		qs = append(qs, protocol.Question{ID: i + 1, Text: txt})
	}
	return qs
}

func TestQuestionTracker_AdvanceWalksListOnce(t *testing.T) {
	tr := NewQuestionTracker()
	tr.Set(questionList("q1", "q2", "q3"))

	next, ok := tr.Advance()
	if !ok || next.Text != "q2" {
		t.Fatalf("Advance()=%q,%v, want q2", next.Text, ok)
	}
	if tr.Index() != 1 {
		t.Fatalf("index=%d, want 1", tr.Index())
	}

	next, ok = tr.Advance()
	if !ok || next.Text != "q3" {
		t.Fatalf("Advance()=%q,%v, want q3", next.Text, ok)
	}

	// Third advance exhausts the list of three.
	if _, ok := tr.Advance(); ok {
		t.Fatalf("expected no next question at end of list")
	}
	if tr.Index() != 3 {
		t.Fatalf("index=%d, want 3", tr.Index())
	}

	// Further advances stay pinned; the index never exceeds the length.
	for i := 0; i < 5; i++ {
		if _, ok := tr.Advance(); ok {
			t.Fatalf("advance past end returned a question")
		}
	}
	if tr.Index() != 3 {
		t.Fatalf("index=%d after over-advancing, want 3", tr.Index())
	}
}

func TestQuestionTracker_EmptyListIsNoOp(t *testing.T) {
	tr := NewQuestionTracker()
	for i := 0; i < 4; i++ {
		if _, ok := tr.Advance(); ok {
			t.Fatalf("advance on empty list returned a question")
		}
	}
	if tr.Index() != 0 {
		t.Fatalf("index=%d, want 0", tr.Index())
	}
}

func TestQuestionTracker_SetResetsIndex(t *testing.T) {
	tr := NewQuestionTracker()
	tr.Set(questionList("a", "b"))
	tr.Advance()
	tr.Advance()

	tr.Set(questionList("x", "y", "z"))
	if tr.Index() != 0 {
		t.Fatalf("index=%d after Set, want 0", tr.Index())
	}
	cur, ok := tr.Current()
	if !ok || cur.Text != "x" {
		t.Fatalf("Current()=%q,%v, want x", cur.Text, ok)
	}
	if tr.Len() != 3 {
		t.Fatalf("len=%d, want 3", tr.Len())
	}
}

func TestQuestionTracker_CurrentAfterExhaustion(t *testing.T) {
	tr := NewQuestionTracker()
	tr.Set(questionList("only"))
	if _, ok := tr.Advance(); ok {
		t.Fatalf("single-question list should exhaust on first advance")
	}
	if _, ok := tr.Current(); ok {
		t.Fatalf("Current should report nothing after exhaustion")
	}
}
