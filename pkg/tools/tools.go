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

// Package tools merges built-in tools with tools discovered from MCP
// servers, resolves name conflicts, and executes calls with retry and
// per-call timeouts.
package tools

import (
	"context"
)

// Tool is one callable capability.
type Tool interface {
	Name() string
	Description() string

	// InputSchema is the JSON Schema of the arguments.
	InputSchema() map[string]any

	// ServerName is the MCP origin, empty for built-ins.
	ServerName() string

	Call(ctx context.Context, args map[string]any) (*Result, error)
}

// Result is the outcome of a tool call.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// Definition is the wire description of a tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	ServerName  string         `json:"server_name,omitempty"`
}

// Conflict records a tool that was shadowed during discovery.
type Conflict struct {
	Name       string `json:"name"`
	Source     string `json:"source"`
	ShadowedBy string `json:"shadowed_by"`
	Resolution string `json:"resolution"`
}

// Describe converts a tool to its definition.
func Describe(t Tool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.InputSchema(),
		ServerName:  t.ServerName(),
	}
}
