package llm

import (
	"context"
	"errors"
	"sync"
)

// Mock is a scripted client for tests: each Complete call pops the next
// queued response, Summarize returns a fixed string.
type Mock struct {
	mu        sync.Mutex
	responses []CompletionResponse
	errs      []error
	Requests  []CompletionRequest

	SummaryResult string
	SummaryErr    error
}

func NewMock() *Mock {
	return &Mock{SummaryResult: "summary"}
}

// Queue appends a scripted response (with optional error) for the next
// Complete call.
func (m *Mock) Queue(resp CompletionResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	m.errs = append(m.errs, err)
}

func (m *Mock) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if len(m.responses) == 0 {
		return CompletionResponse{}, errors.New("mock: no scripted response")
	}
	resp, err := m.responses[0], m.errs[0]
	m.responses, m.errs = m.responses[1:], m.errs[1:]
	return resp, err
}

func (m *Mock) Summarize(_ context.Context, _, _ string) (string, error) {
	return m.SummaryResult, m.SummaryErr
}
