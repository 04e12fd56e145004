// Package llmtest provides in-memory llm.Client implementations for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/styletag-backend/internal/platform/llm"
)

// Func adapts a function to llm.Client.
type Func struct {
	Name string
	Fn   func(ctx context.Context, req llm.Request) (string, error)

	mu    sync.Mutex
	calls []llm.Request
}

func (f *Func) Generate(ctx context.Context, req llm.Request) (llm.Completion, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	text, err := f.Fn(ctx, req)
	if err != nil {
		return llm.Completion{}, err
	}
	model := req.Model
	if model == "" {
		model = f.Model()
	}
	return llm.Completion{Text: text, Model: model, Usage: llm.Usage{InputTokens: len(req.User) / 4, OutputTokens: len(text) / 4}}, nil
}

func (f *Func) Model() string {
	if f.Name == "" {
		return "test-model"
	}
	return f.Name
}

// Calls returns a copy of every request seen so far.
func (f *Func) Calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.calls...)
}

// Scripted replies with Responses in order and then repeats the last one.
func Scripted(responses ...string) *Func {
	var mu sync.Mutex
	i := 0
	return &Func{Fn: func(context.Context, llm.Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(responses) == 0 {
			return "", errors.New("llmtest: no scripted responses")
		}
		r := responses[i]
		if i < len(responses)-1 {
			i++
		}
		return r, nil
	}}
}

// Failing always returns err.
func Failing(err error) *Func {
	return &Func{Fn: func(context.Context, llm.Request) (string, error) { return "", err }}
}
