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

// Package logger configures slog for maestro.
//
// Two concerns live here: level/format selection and secret redaction.
// Credential-like attributes are blanked before any handler sees them, so
// no serialization boundary (console, JSON, files) can leak them.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the log output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// redactedKeys are attribute keys whose values are never emitted.
var redactedKeys = []string{
	"api_key",
	"apikey",
	"token",
	"secret",
	"signature",
	"authorization",
	"password",
	"credential",
}

const redactedValue = "[REDACTED]"

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error. Unknown strings default to warn.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// RedactAttr is a slog ReplaceAttr function that blanks credential-like
// attribute values.
func RedactAttr(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, sensitive := range redactedKeys {
		if strings.Contains(key, sensitive) {
			a.Value = slog.StringValue(redactedValue)
			break
		}
	}
	return a
}

// New builds a redacting slog.Logger writing to w.
func New(w io.Writer, level slog.Level, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: RedactAttr,
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// Setup installs the process-wide default logger.
func Setup(levelStr string, format Format) {
	logger := New(os.Stderr, ParseLevel(levelStr), format)
	slog.SetDefault(logger)
}
