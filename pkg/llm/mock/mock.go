// Package mock provides a test double for the llm.Transport interface.
//
// Use Transport in unit tests to script the endpoint's responses round by
// round and to inspect the requests the generation loop actually sent,
// without a live LLM backend.
//
// Example:
//
//	tr := &mock.Transport{
//	    Script: []mock.Step{
//	        {Result: &llm.Result{Kind: llm.KindToolCalls, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "echo", Arguments: `{"message":"hi"}`}}}},
//	        {Result: &llm.Result{Kind: llm.KindFinal, Content: "hi"}},
//	    },
//	}
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/parley/pkg/llm"
)

// Step is one scripted response. Exactly one of Result or Err should be set.
type Step struct {
	// Result is returned from Complete when Err is nil.
	Result *llm.Result

	// Err, if non-nil, is returned instead of a result.
	Err error
}

// Call records a single invocation of Complete.
type Call struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context

	// Req is the Request passed to Complete, with Messages deep-copied at
	// call time so later appends by the caller do not alter the record.
	Req llm.Request
}

// Transport is a mock implementation of llm.Transport.
//
// Complete consumes Script entries in order. When the script is exhausted it
// returns ExhaustedErr if set, otherwise it keeps returning the last step.
// An empty script always returns an error.
type Transport struct {
	mu sync.Mutex

	// Script is the ordered sequence of responses to play back.
	Script []Step

	// ExhaustedErr is returned once the script has been fully consumed.
	// When nil, the final step is repeated instead.
	ExhaustedErr error

	// Calls records every invocation of Complete in order.
	Calls []Call

	// Closed reports whether Close has been called.
	Closed bool

	next int
}

var _ llm.Transport = (*Transport)(nil)

// Complete implements llm.Transport.
func (t *Transport) Complete(ctx context.Context, req llm.Request) (*llm.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := req
	rec.Messages = make([]llm.Message, len(req.Messages))
	copy(rec.Messages, req.Messages)
	t.Calls = append(t.Calls, Call{Ctx: ctx, Req: rec})

	if len(t.Script) == 0 {
		return nil, errors.New("mock: empty script")
	}

	idx := t.next
	if idx >= len(t.Script) {
		if t.ExhaustedErr != nil {
			return nil, t.ExhaustedErr
		}
		idx = len(t.Script) - 1
	} else {
		t.next++
	}

	step := t.Script[idx]
	if step.Err != nil {
		return nil, step.Err
	}

	res := *step.Result
	if res.Raw.Role == "" {
		res.Raw = llm.Message{Role: llm.RoleAssistant, Content: res.Content, ToolCalls: res.ToolCalls}
	}
	return &res, nil
}

// Close implements llm.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	return nil
}

// CallCount returns the number of Complete invocations so far.
func (t *Transport) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}
