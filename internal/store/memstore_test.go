package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/MrWong99/parley/pkg/llm"
)

func userMsg(content string) llm.Message {
	return llm.Message{Role: llm.RoleUser, Content: content}
}

func TestAppendAndHistory(t *testing.T) {
	t.Parallel()
	s := NewMemStore()
	ctx := context.Background()

	for _, c := range []string{"first", "second", "third"} {
		if err := s.Append(ctx, "t1", userMsg(c)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	msgs, err := s.History(ctx, "t1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if msgs[i].Content != want {
			t.Errorf("msgs[%d].Content = %q, want %q", i, msgs[i].Content, want)
		}
	}
}

func TestPrepend(t *testing.T) {
	t.Parallel()
	s := NewMemStore()
	ctx := context.Background()

	if err := s.Append(ctx, "t1", userMsg("question")); err != nil {
		t.Fatal(err)
	}
	sys := llm.Message{Role: llm.RoleSystem, Content: "you are helpful"}
	if err := s.Prepend(ctx, "t1", sys); err != nil {
		t.Fatalf("Prepend: %v", err)
	}

	msgs, _ := s.History(ctx, "t1")
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem {
		t.Errorf("msgs[0].Role = %q, want system", msgs[0].Role)
	}
	if msgs[1].Content != "question" {
		t.Errorf("msgs[1].Content = %q", msgs[1].Content)
	}
}

func TestUnknownThreadIsEmpty(t *testing.T) {
	t.Parallel()
	s := NewMemStore()

	msgs, err := s.History(context.Background(), "nope")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("len = %d, want 0", len(msgs))
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	t.Parallel()
	s := NewMemStore()
	ctx := context.Background()

	s.Append(ctx, "t1", userMsg("original"))

	snapshot, _ := s.History(ctx, "t1")
	snapshot[0].Content = "mutated"
	snapshot = append(snapshot, userMsg("extra"))
	_ = snapshot

	fresh, _ := s.History(ctx, "t1")
	if len(fresh) != 1 || fresh[0].Content != "original" {
		t.Errorf("stored history affected by snapshot mutation: %+v", fresh)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	s := NewMemStore()
	ctx := context.Background()

	for i := range 5 {
		s.Append(ctx, "t1", userMsg(fmt.Sprintf("m%d", i)))
	}

	if err := s.Truncate(ctx, "t1", 2); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	msgs, _ := s.History(ctx, "t1")
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "m3" || msgs[1].Content != "m4" {
		t.Errorf("kept wrong messages: %q, %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestTruncateNoOpCases(t *testing.T) {
	t.Parallel()
	s := NewMemStore()
	ctx := context.Background()

	s.Append(ctx, "t1", userMsg("only"))

	// Larger than history, zero, negative, and unknown threads all no-op.
	for _, max := range []int{5, 0, -1} {
		if err := s.Truncate(ctx, "t1", max); err != nil {
			t.Fatalf("Truncate(%d): %v", max, err)
		}
	}
	if err := s.Truncate(ctx, "unknown", 3); err != nil {
		t.Fatalf("Truncate unknown thread: %v", err)
	}

	msgs, _ := s.History(ctx, "t1")
	if len(msgs) != 1 {
		t.Errorf("len = %d, want 1", len(msgs))
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	s := NewMemStore()
	ctx := context.Background()

	s.Append(ctx, "t1", userMsg("bye"))
	if err := s.Clear(ctx, "t1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	msgs, _ := s.History(ctx, "t1")
	if len(msgs) != 0 {
		t.Errorf("len = %d after Clear, want 0", len(msgs))
	}

	// Idempotent.
	if err := s.Clear(ctx, "t1"); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestThreadsAreIsolated(t *testing.T) {
	t.Parallel()
	s := NewMemStore()
	ctx := context.Background()

	s.Append(ctx, "a", userMsg("for a"))
	s.Append(ctx, "b", userMsg("for b"))
	s.Clear(ctx, "a")

	msgs, _ := s.History(ctx, "b")
	if len(msgs) != 1 || msgs[0].Content != "for b" {
		t.Errorf("thread b affected by clearing a: %+v", msgs)
	}
}

func TestConcurrentAppends(t *testing.T) {
	t.Parallel()
	s := NewMemStore()
	ctx := context.Background()

	const writers = 16
	const perWriter = 50

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				s.Append(ctx, "shared", userMsg(fmt.Sprintf("w%d-%d", w, i)))
			}
		}()
	}
	wg.Wait()

	msgs, err := s.History(ctx, "shared")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != writers*perWriter {
		t.Errorf("len = %d, want %d", len(msgs), writers*perWriter)
	}

	// Per-writer order must be preserved even though interleaving is not.
	next := make(map[int]int)
	for _, m := range msgs {
		var w, i int
		if _, err := fmt.Sscanf(m.Content, "w%d-%d", &w, &i); err != nil {
			t.Fatalf("unexpected content %q", m.Content)
		}
		if i != next[w] {
			t.Fatalf("writer %d message %d arrived out of order (want %d)", w, i, next[w])
		}
		next[w]++
	}
}

func TestZeroValueMemStore(t *testing.T) {
	t.Parallel()
	var s MemStore
	ctx := context.Background()

	if err := s.Append(ctx, "t", userMsg("hi")); err != nil {
		t.Fatalf("Append on zero value: %v", err)
	}
	msgs, _ := s.History(ctx, "t")
	if len(msgs) != 1 {
		t.Errorf("len = %d, want 1", len(msgs))
	}
}
