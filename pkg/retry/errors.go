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

// Package retry provides the shared error taxonomy and the backoff policy
// used across maestro components.
//
// Every component returns either a success value or an *Error carrying a
// Kind. Layers above classify by Kind (never by message) to decide whether
// to retry, convert, or surface the failure.
package retry

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and retry decisions.
type Kind string

const (
	// KindValidation - input out of range, empty required field, schema violation.
	KindValidation Kind = "validation"

	// KindConfig - missing or inconsistent configuration.
	KindConfig Kind = "config"

	// KindProvider - LLM provider failure. Retriability is provider-marked.
	KindProvider Kind = "provider"

	// KindPersistence - storage read/write/parse failure.
	KindPersistence Kind = "persistence"

	// KindTool - tool execution failure.
	KindTool Kind = "tool"

	// KindConnection - transport-level connection failure. Retriable by default.
	KindConnection Kind = "connection"

	// KindTimeout - operation deadline exceeded. Retriable by default.
	KindTimeout Kind = "timeout"

	// KindAuth - authentication or authorization denial.
	KindAuth Kind = "auth"

	// KindDecomposition - decomposition contract violation. See Reason.
	KindDecomposition Kind = "decomposition"

	// KindStagnation - no viable next tier on the escalation ladder.
	KindStagnation Kind = "stagnation"

	// KindNotFound - a named entity (tool, session, checkpoint) does not exist.
	KindNotFound Kind = "not_found"
)

// Decomposition failure reasons.
const (
	ReasonMaxDepth             = "max_depth_reached"
	ReasonCyclic               = "cyclic_decomposition"
	ReasonInsufficientChildren = "insufficient_children"
	ReasonTooManyChildren      = "too_many_children"
	ReasonEmptyChild           = "empty_child"
	ReasonParseFailure         = "parse_failure"
	ReasonProcessing           = "processing_error"
)

// Error is the typed error carried across component boundaries.
type Error struct {
	Kind    Kind
	Reason  string // optional sub-kind, e.g. decomposition reasons
	Message string
	Err     error

	// retriable overrides the kind default when set.
	retriable *bool
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Reason, e.Message, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the operation may be retried.
// Connection and timeout errors are retriable by default; everything else is
// fatal unless explicitly marked otherwise.
func (e *Error) IsRetryable() bool {
	if e.retriable != nil {
		return *e.retriable
	}
	switch e.Kind {
	case KindConnection, KindTimeout:
		return true
	}
	return false
}

// New creates an error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithReason attaches a sub-kind reason.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// MarkRetriable overrides the default retriability.
func (e *Error) MarkRetriable(retriable bool) *Error {
	e.retriable = &retriable
	return e
}

// KindOf extracts the Kind of an error, or empty if untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf extracts the Reason of an error, or empty.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// IsRetryable reports whether err may be retried. Untyped errors are fatal.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	// Anything implementing its own IsRetryable (e.g. transport errors)
	// gets the final say.
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}
