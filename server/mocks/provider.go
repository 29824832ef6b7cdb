package mocks

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockProvider simulates the text-generation service in tests without
// making network calls.
//
// Example usage:
//
//	p := NewMockProvider(func(ctx context.Context, prompt string) (string, error) {
//	    return "mocked response", nil
//	})
type MockProvider struct {
	ProviderName string

	mu           sync.RWMutex
	generateFunc func(context.Context, string) (string, error)
	lastPrompt   string
	calls        atomic.Int32
}

// NewMockProvider creates a MockProvider named "mock". A nil generateFunc
// makes Generate return an empty string with no error.
func NewMockProvider(generateFunc func(context.Context, string) (string, error)) *MockProvider {
	return &MockProvider{
		ProviderName: "mock",
		generateFunc: generateFunc,
	}
}

// Name implements provider.Provider.
func (m *MockProvider) Name() string {
	return m.ProviderName
}

// Generate implements provider.Provider.
func (m *MockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	m.calls.Add(1)

	m.mu.Lock()
	m.lastPrompt = prompt
	fn := m.generateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt)
	}
	return "", nil
}

// SetGenerateFunc swaps the behavior of later calls.
func (m *MockProvider) SetGenerateFunc(fn func(context.Context, string) (string, error)) {
	m.mu.Lock()
	m.generateFunc = fn
	m.mu.Unlock()
}

// Calls returns how many times Generate ran.
func (m *MockProvider) Calls() int {
	return int(m.calls.Load())
}

// LastPrompt returns the prompt of the most recent call.
func (m *MockProvider) LastPrompt() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPrompt
}
