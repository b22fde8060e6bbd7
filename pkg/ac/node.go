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

// Package ac models acceptance criteria as a tree of nodes, decides whether
// a node is atomic enough to execute directly, decomposes the ones that are
// not, and schedules atomic leaves onto the agent pool in dependency order.
package ac

import (
	"strings"
)

// Status is an AC node's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAtomic     Status = "atomic"
	StatusDecomposed Status = "decomposed"
	StatusExecuting  Status = "executing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// transitions is the allowed status graph. Terminal states map to nil.
var transitions = map[Status][]Status{
	StatusPending:    {StatusAtomic, StatusDecomposed, StatusFailed},
	StatusAtomic:     {StatusExecuting, StatusFailed},
	StatusDecomposed: {StatusCompleted, StatusFailed},
	StatusExecuting:  {StatusCompleted, StatusFailed},
	StatusCompleted:  nil,
	StatusFailed:     nil,
}

// CanTransition reports whether moving from s to target is allowed.
func (s Status) CanTransition(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Node is one acceptance criterion in the tree.
type Node struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	Depth       int            `json:"depth"`
	ParentID    string         `json:"parent_id,omitempty"`
	Status      Status         `json:"status"`
	IsAtomic    bool           `json:"is_atomic"`
	ChildrenIDs []string       `json:"children_ids,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// DependsOn holds zero-based sibling indexes this node waits on,
	// produced at decomposition time. Always backward references.
	DependsOn []int `json:"depends_on,omitempty"`
}

// Leaf reports whether the node has no children.
func (n Node) Leaf() bool {
	return len(n.ChildrenIDs) == 0
}

func (n *Node) clone() Node {
	out := *n
	out.ChildrenIDs = append([]string(nil), n.ChildrenIDs...)
	out.DependsOn = append([]int(nil), n.DependsOn...)
	if n.Metadata != nil {
		out.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// normalizeContent lowercases and collapses whitespace so that cycle
// detection ignores case and spacing.
func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
