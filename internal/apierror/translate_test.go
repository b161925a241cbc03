// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apierror

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const jailbreakRaw = `500 - {\'error\': {\'message\': {\'innererror\': {'content_filter_result': {'jailbreak': {'filtered': True}}}}\'}}`

func TestTranslate_Jailbreak(t *testing.T) {
	got := Translate(jailbreakRaw)

	assert.Contains(t, got, "Reason: This prompt contains content flagged as Jailbreak")
	assert.Contains(t, got, DocsURL)
	assert.Equal(t, FilteredMessage("Jailbreak"), got)
}

func TestTranslate_InnerErrorExtraction(t *testing.T) {
	raw := `429 - {\'error\': {\'message\': \'Rate limit exceeded\'}}`

	got := Translate(raw)

	assert.Equal(t, `429 - {'error': {'message': 'Rate limit exceeded`, got)
	assert.NotContains(t, got, `\'`)
}

func TestTranslate_NoHyphenPrefix(t *testing.T) {
	raw := `{\'error\': {\'message\': \'bad\'}}`

	assert.Equal(t, `{'error': {'message': 'bad`, Translate(raw))
}

func TestTranslate_PassThrough(t *testing.T) {
	tests := []string{
		"",
		"plain failure",
		"503 - service unavailable",
		"'innererror': not an object",
		"'innererror': {'content_filter_result': {'jailbreak': {'filtered': False}}}}",
		"'innererror': {unterminated",
	}
	for _, raw := range tests {
		assert.Equal(t, raw, Translate(raw), "Translate(%q)", raw)
	}
}

func TestTranslate_OtherCategories(t *testing.T) {
	raw := `400 - {'error': {'message': 'filtered', 'innererror': {'code': 'ResponsibleAIPolicyViolation', 'content_filter_result': {'hate': {'filtered': True, 'severity': 'high'}, 'jailbreak': {'filtered': False, 'detected': False}}}}}`

	got := Translate(raw)

	assert.True(t, strings.HasPrefix(got, "The prompt was filtered"), "got %q", got)
	assert.Contains(t, got, "flagged as Hate")
}

func TestTranslate_DoubleQuotedKeys(t *testing.T) {
	raw := `{"error": {"innererror": {"content_filter_result": {"violence": {"filtered": true}}}}}`

	assert.Equal(t, FilteredMessage("Violence"), Translate(raw))
}

func TestTranslate_Idempotent(t *testing.T) {
	inputs := []string{
		jailbreakRaw,
		`429 - {\'error\': {\'message\': \'Rate limit exceeded\'}}`,
		"plain failure",
		"",
		`{\'error\': {\'message\': {\'innererror\': {'content_filter_result': {'jailbreak': {'filtered': None}}}}\'}}`,
	}
	for _, in := range inputs {
		once := Translate(in)
		assert.Equal(t, once, Translate(once), "Translate not idempotent for %q", in)
	}
}

func TestBalancedObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "{'a': {'b': 1}} tail", want: "{'a': {'b': 1}}", ok: true},
		{in: "  {'a': '}'}", want: "{'a': '}'}", ok: true},
		{in: "{'a': 1", ok: false},
		{in: "x{'a': 1}", ok: false},
	}
	for _, tc := range tests {
		got, ok := balancedObject(tc.in)
		assert.Equal(t, tc.ok, ok, "balancedObject(%q) ok", tc.in)
		assert.Equal(t, tc.want, got, "balancedObject(%q)", tc.in)
	}
}

func TestFilteredMessage_Text(t *testing.T) {
	got := FilteredMessage("Hate")

	assert.True(t, strings.HasPrefix(got, "The prompt was filtered due to triggering Azure OpenAI’s content filtering system.\n"))
	assert.Contains(t, got, "Reason: This prompt contains content flagged as Hate\n\n")
	assert.True(t, strings.HasSuffix(got, "Learn more: "+DocsURL))
}
