// Package store defines the conversation history store: ordered, per-thread
// message sequences that are safe under concurrent access.
//
// A thread is created implicitly on first Append and identified by a
// caller-supplied id. History and Clear on an unknown thread are no-ops
// returning empty results, never errors. Messages are immutable once
// appended; append order within a thread is the single source of truth for
// conversation order.
//
// The interface takes a context so that a future durable backend can honour
// cancellation; MemStore ignores it.
package store

import (
	"context"

	"github.com/MrWong99/parley/pkg/llm"
)

// Store is the abstraction over conversation history storage.
//
// Implementations must be safe for concurrent use. Concurrent Appends to the
// same thread are serialised: the relative order of concurrent callers is
// unspecified, but a total order is always preserved and no message is lost
// or duplicated.
type Store interface {
	// Append adds msg to the end of the thread's sequence, creating the
	// thread if absent.
	Append(ctx context.Context, threadID string, msg llm.Message) error

	// Prepend inserts msg at the beginning of the thread's sequence,
	// creating the thread if absent. Used for system-prompt injection.
	Prepend(ctx context.Context, threadID string, msg llm.Message) error

	// History returns a snapshot of the thread's messages reflecting all
	// appends completed before the call. The returned slice is a copy that
	// no concurrent Append can mutate. Unknown threads yield an empty slice.
	History(ctx context.Context, threadID string) ([]llm.Message, error)

	// Truncate trims the thread to its most recent max messages. A max of
	// zero or less leaves the thread untouched.
	Truncate(ctx context.Context, threadID string, max int) error

	// Clear removes the thread's history. Idempotent; clearing an unknown
	// thread is a no-op.
	Clear(ctx context.Context, threadID string) error
}
