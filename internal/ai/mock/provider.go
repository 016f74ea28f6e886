// Package mock provides a scripted AIProvider for tests and local
// development without model-service credentials.
package mock

import (
	"context"
	"strings"
	"sync"

	"docpipe/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing. CompleteFunc, when
// set, scripts the responses; Calls counts every invocation.
type MockProvider struct {
	Name_        string
	CompleteFunc func(ctx context.Context, p models.Prompt) (string, error)

	mu      sync.Mutex
	calls   int
	prompts []models.Prompt
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Complete(ctx context.Context, p models.Prompt) (string, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, p)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, p)
	}
	return `{"trends":[]}`, nil
}

// Calls returns how many times Complete has been invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns a copy of every prompt seen so far, in order.
func (m *MockProvider) Prompts() []models.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Prompt(nil), m.prompts...)
}

// NewProvider returns a MockProvider that answers every task with a small
// valid payload, keyed off the system prompt.
func NewProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		CompleteFunc: func(_ context.Context, p models.Prompt) (string, error) {
			switch {
			case strings.Contains(p.System, `"sections"`):
				return `{"sections":[{"title":"Overview","bullets":["Simulated outline bullet"]}]}`, nil
			case strings.Contains(p.System, `"decisions"`):
				return `{"decisions":["Simulated decision"],"action_items":[{"owner":"","task":"Simulated follow-up","due":""}],"key_points":["Simulated key point"]}`, nil
			default:
				return `{"trends":[{"metric":"revenue","direction":"up","magnitude":12.5,"narrative":"Simulated upward trend."}]}`, nil
			}
		},
	}
}

// NewScriptedProvider returns responses in order, repeating the last one
// once the script runs out.
func NewScriptedProvider(responses ...string) *MockProvider {
	idx := 0
	var mu sync.Mutex
	return &MockProvider{
		Name_: "mock-scripted",
		CompleteFunc: func(_ context.Context, _ models.Prompt) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			resp := responses[idx]
			if idx < len(responses)-1 {
				idx++
			}
			return resp, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		CompleteFunc: func(_ context.Context, _ models.Prompt) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		CompleteFunc: func(ctx context.Context, _ models.Prompt) (string, error) {
			<-ctx.Done()
			return "", models.ErrTimeout
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
