// Package jsonx extracts JSON payloads from free-form LLM output.
//
// LLMs return JSON wrapped in prose, markdown fences, or with leading
// chatter. The extractor is permissive about where the JSON lives and strict
// about what it decodes: first locate a candidate, then unmarshal it into
// the caller's typed value with unknown fields allowed (validation of the
// decoded structure is the caller's job).
package jsonx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractObject finds a JSON object in text and decodes it into v.
// Three strategies are tried in order:
//  1. the whole text is JSON
//  2. a ```json fenced block
//  3. the first balanced {...} span
func ExtractObject(text string, v any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty text")
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	if fenced, ok := fencedBlock(text); ok {
		if err := json.Unmarshal([]byte(fenced), v); err == nil {
			return nil
		}
	}

	if span, ok := balancedObject(text); ok {
		if err := json.Unmarshal([]byte(span), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no parseable JSON object found")
}

// fencedBlock returns the contents of the first ``` fenced block.
func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	// Skip an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || tag == "json" || tag == "JSON" {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// balancedObject returns the first brace-balanced object span, honoring
// strings and escapes.
func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// CanonicalMarshal serializes v as JSON with sorted keys and no extraneous
// whitespace. Used wherever bytes are hashed, so that equal values always
// produce equal digests.
func CanonicalMarshal(v any) ([]byte, error) {
	// encoding/json already sorts map keys; normalize struct input by
	// round-tripping through a map first.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	return json.Marshal(generic)
}
