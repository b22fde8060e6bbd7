// Package testutils provides shared fakes for package tests.
package testutils

import (
	"context"
	"sync"

	"github.com/kadirpekel/maestro/pkg/llm"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// Step is one scripted provider outcome: either a response or an error.
type Step struct {
	Response *llm.Response
	Err      error
}

// ScriptedProvider replays a fixed sequence of outcomes and records every
// call it receives. When the script runs out it repeats the last step.
type ScriptedProvider struct {
	ProviderName string

	mu    sync.Mutex
	steps []Step
	calls []RecordedCall
}

// RecordedCall captures the arguments of one Complete invocation.
type RecordedCall struct {
	Messages []llm.Message
	Config   llm.RequestConfig
}

// NewScriptedProvider builds a provider from steps.
func NewScriptedProvider(steps ...Step) *ScriptedProvider {
	return &ScriptedProvider{ProviderName: "scripted", steps: steps}
}

// Respond is a convenience step with finish_reason "stop".
func Respond(content string) Step {
	return Step{Response: &llm.Response{Content: content, FinishReason: llm.FinishStop}}
}

// RespondTruncated is a convenience step with finish_reason "length".
func RespondTruncated(content string) Step {
	return Step{Response: &llm.Response{Content: content, FinishReason: llm.FinishLength}}
}

// Fail is a convenience error step.
func Fail(err error) Step {
	return Step{Err: err}
}

// FailRetriable is a connection-kind error step, which retries.
func FailRetriable(msg string) Step {
	return Step{Err: retry.New(retry.KindConnection, msg)}
}

func (p *ScriptedProvider) Complete(ctx context.Context, messages []llm.Message, cfg llm.RequestConfig) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, retry.Wrap(retry.KindTimeout, "context cancelled", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, RecordedCall{Messages: messages, Config: cfg})

	idx := len(p.calls) - 1
	if idx >= len(p.steps) {
		idx = len(p.steps) - 1
	}
	if idx < 0 {
		return nil, retry.New(retry.KindProvider, "scripted provider has no steps")
	}

	step := p.steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	resp := *step.Response
	return &resp, nil
}

func (p *ScriptedProvider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "scripted"
}

func (p *ScriptedProvider) Close() error { return nil }

// Calls returns a copy of the recorded calls.
func (p *ScriptedProvider) Calls() []RecordedCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RecordedCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns how many times Complete was invoked.
func (p *ScriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
