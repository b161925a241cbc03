// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apierror turns raw error strings from the completion service into
// messages a person can act on.
//
// Upstream errors often arrive as a status prefix followed by a Python-style
// dict dump with escaped quotes. Translate pulls the inner error out of that
// dump and, when the content filter rejected the prompt, replaces the whole
// thing with a short explanation.
package apierror

import (
	"encoding/json"
	"regexp"
	"strings"
)

// DocsURL points at the content filtering documentation.
const DocsURL = "https://go.microsoft.com/fwlink/?linkid=2198766"

// innerErrorCue marks an escaped inner error dict in a raw message.
const innerErrorCue = `{\'error\': {\'message\': `

var (
	innerErrorKey  = regexp.MustCompile(`['"]innererror['"]\s*:\s*`)
	pythonLiterals = regexp.MustCompile(`\b(True|False|None)\b`)
)

// =============================================================================
// CONTENT FILTER CATEGORIES
// =============================================================================

// FilterCategory is one content filter classifier.
type FilterCategory struct {
	Key    string
	Reason string
}

// filterCategories is checked in order; the first filtered category names the reason.
var filterCategories = []FilterCategory{
	{Key: "jailbreak", Reason: "Jailbreak"},
	{Key: "hate", Reason: "Hate"},
	{Key: "sexual", Reason: "Sexual"},
	{Key: "violence", Reason: "Violence"},
	{Key: "self_harm", Reason: "Self-harm"},
	{Key: "profanity", Reason: "Profanity"},
}

type filterResult struct {
	Filtered bool   `json:"filtered"`
	Detected bool   `json:"detected"`
	Severity string `json:"severity"`
}

type innerError struct {
	Code                string                  `json:"code"`
	ContentFilterResult map[string]filterResult `json:"content_filter_result"`
}

// =============================================================================
// TRANSLATION
// =============================================================================

// Translate converts a raw upstream error string into user-facing text.
// It never panics and returns raw unchanged when nothing can be extracted.
// Translate is idempotent: Translate(Translate(s)) == Translate(s).
func Translate(raw string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = raw
		}
	}()

	msg := extractInnerError(raw)
	if reason, ok := filterReason(msg); ok {
		return FilteredMessage(reason)
	}
	return msg
}

// FilteredMessage is the explanation shown when the content filter blocks a prompt.
func FilteredMessage(reason string) string {
	return "The prompt was filtered due to triggering Azure OpenAI’s content filtering system.\n" +
		"Reason: This prompt contains content flagged as " + reason + "\n\n" +
		"Please modify your prompt and retry. Learn more: " + DocsURL
}

// extractInnerError unwraps an escaped inner error dict, keeping the status
// prefix (everything up to and including the first hyphen).
func extractInnerError(raw string) string {
	idx := strings.Index(raw, innerErrorCue)
	if idx < 0 {
		return raw
	}

	prefix := ""
	if hy := strings.Index(raw[:idx], "-"); hy >= 0 {
		prefix = strings.TrimSpace(raw[:hy+1])
	}

	inner := raw[idx:]
	switch {
	case strings.HasSuffix(inner, `\'}}`):
		inner = strings.TrimSuffix(inner, `\'}}`)
	case strings.HasSuffix(inner, `'}}`):
		inner = strings.TrimSuffix(inner, `'}}`)
	}
	inner = strings.ReplaceAll(inner, `\'`, `'`)

	if prefix == "" {
		return inner
	}
	return prefix + " " + inner
}

// filterReason looks for an innererror object and reports the first content
// filter category that blocked the prompt.
func filterReason(msg string) (string, bool) {
	loc := innerErrorKey.FindStringIndex(msg)
	if loc == nil {
		return "", false
	}
	blob, ok := balancedObject(msg[loc[1]:])
	if !ok {
		return "", false
	}

	fixed := strings.ReplaceAll(blob, `'`, `"`)
	fixed = pythonLiterals.ReplaceAllStringFunc(fixed, func(lit string) string {
		switch lit {
		case "True":
			return "true"
		case "False":
			return "false"
		}
		return "null"
	})

	var ie innerError
	if err := json.Unmarshal([]byte(fixed), &ie); err != nil {
		return "", false
	}
	for _, cat := range filterCategories {
		if res, found := ie.ContentFilterResult[cat.Key]; found && res.Filtered {
			return cat.Reason, true
		}
	}
	return "", false
}

// balancedObject returns the {...} object at the start of s, honoring quotes.
func balancedObject(s string) (string, bool) {
	s = strings.TrimLeft(s, " \t")
	if !strings.HasPrefix(s, "{") {
		return "", false
	}

	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
