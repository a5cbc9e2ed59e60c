package llm

import (
	"context"
	"sync"
)

// Mock is an in-process Client. With Respond unset it is offline and
// callers use their local heuristics; with Respond set it serves scripted
// answers, which is how tests drive the stages.
type Mock struct {
	Respond func(ctx context.Context, req Request) (string, error)

	mu    sync.Mutex
	calls []Request
}

// Complete records the request and returns Respond's answer.
func (m *Mock) Complete(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.Respond == nil {
		return "", ErrOffline
	}
	return m.Respond(ctx, req)
}

// Offline reports whether the mock has no scripted answers.
func (m *Mock) Offline() bool {
	return m.Respond == nil
}

// Calls returns a copy of the requests seen so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}
