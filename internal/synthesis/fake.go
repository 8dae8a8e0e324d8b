package synthesis

import (
	"context"
	"sync"
)

// FakeClient is a scripted Client for tests: responses are consumed in
// order, and every request is recorded.
type FakeClient struct {
	mu        sync.Mutex
	Responses []string
	Err       error

	Calls []FakeCall
}

// FakeCall is one recorded CompleteJSON invocation.
type FakeCall struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
}

// CompleteJSON returns the next scripted response.
func (f *FakeClient) CompleteJSON(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, FakeCall{Model: model, SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Responses) == 0 {
		return "{}", nil
	}
	resp := f.Responses[0]
	f.Responses = f.Responses[1:]
	return resp, nil
}

// CallCount returns how many requests the fake has served.
func (f *FakeClient) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
