package provider

import (
	"context"
	"sync"
)

// Fake records requests and answers with a fixed text or error.
type Fake struct {
	ResponseText string
	Error        error

	mu       sync.Mutex
	requests []Request
}

func NewFake(response string) *Fake {
	return &Fake{ResponseText: response}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Generate(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.Error != nil {
		return nil, f.Error
	}
	return &Response{
		Text:  f.ResponseText,
		Model: "fake",
		Usage: Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5},
	}, nil
}

// Requests returns the requests seen so far.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}
