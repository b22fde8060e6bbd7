// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llm abstracts the completion capability consumed by routing,
// atomicity checks, decomposition, and workers.
package llm

import (
	"context"

	"github.com/kadirpekel/maestro/pkg/registry"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// Finish reasons a provider may report.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// RequestConfig is the per-call model configuration.
type RequestConfig struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Usage reports the token accounting of a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response is a completed LLM call.
type Response struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Truncated reports whether the response hit its token budget.
func (r *Response) Truncated() bool {
	return r.FinishReason == FinishLength
}

// Provider is a single completion backend.
type Provider interface {
	// Complete performs one non-streaming completion.
	Complete(ctx context.Context, messages []Message, cfg RequestConfig) (*Response, error)

	// Name identifies the provider ("anthropic", "openai", ...).
	Name() string

	Close() error
}

// Registry holds named providers.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// RegisterProvider adds a provider under a name.
func (r *Registry) RegisterProvider(name string, p Provider) error {
	if name == "" {
		return retry.New(retry.KindValidation, "provider name cannot be empty")
	}
	if p == nil {
		return retry.New(retry.KindValidation, "provider cannot be nil")
	}
	return r.Register(name, p)
}

// ProviderFor resolves a provider by name.
func (r *Registry) ProviderFor(name string) (Provider, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, retry.Newf(retry.KindNotFound, "llm provider not found: %s", name)
	}
	return p, nil
}
