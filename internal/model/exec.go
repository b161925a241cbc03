// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// EXECUTION RESULTS
// =============================================================================

// ExecResult describes one step of server-side intent/search/code execution.
type ExecResult struct {
	Intent         string          `json:"intent,omitempty" yaml:"intent,omitempty"`
	SearchQuery    string          `json:"search_query,omitempty" yaml:"search_query,omitempty"`
	SearchResult   string          `json:"search_result,omitempty" yaml:"search_result,omitempty"`
	CodeGenerated  string          `json:"code_generated,omitempty" yaml:"code_generated,omitempty"`
	CodeExecResult json.RawMessage `json:"code_exec_result,omitempty" yaml:"-"`
}

// ExecResultsEnvelope is the JSON object an assistant context may carry.
type ExecResultsEnvelope struct {
	AllExecResults []ExecResult `json:"all_exec_results"`
}

// execResultsKey marks a context payload as an execution-results envelope.
const execResultsKey = "all_exec_results"

// ParseExecResults decodes an execution-results envelope. ok is false when
// payload is not such an envelope.
func ParseExecResults(payload string) (results []ExecResult, ok bool) {
	if !strings.Contains(payload, execResultsKey) {
		return nil, false
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return nil, false
	}
	raw, found := envelope[execResultsKey]
	if !found {
		return nil, false
	}
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false
	}
	if results == nil {
		results = []ExecResult{}
	}
	return results, true
}

// =============================================================================
// TOOL CONTENT
// =============================================================================

// Citation is a retrieved document referenced by an answer.
type Citation struct {
	Content  string `json:"content"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	FilePath string `json:"filepath,omitempty"`
	ChunkID  string `json:"chunk_id,omitempty"`
}

// ToolContent is the payload of a tool message that carries citations.
type ToolContent struct {
	Citations []Citation `json:"citations"`
	Intent    string     `json:"intent,omitempty"`
}

// ParseCitations returns the citations carried by a tool message. Anything
// that is not a citations payload yields nil.
func ParseCitations(msg *ChatMessage) []Citation {
	if msg == nil || msg.Role != RoleTool {
		return nil
	}
	var tc ToolContent
	if err := json.Unmarshal([]byte(msg.Text()), &tc); err != nil {
		return nil
	}
	return tc.Citations
}

// ParseGeneratedChart returns the code execution result of the last step in
// an execution-results tool message, or nil.
func ParseGeneratedChart(msg *ChatMessage) json.RawMessage {
	if msg == nil || msg.Role != RoleTool {
		return nil
	}
	results, ok := ParseExecResults(msg.Text())
	if !ok || len(results) == 0 {
		return nil
	}
	last := results[len(results)-1]
	if len(last.CodeExecResult) == 0 || string(last.CodeExecResult) == "null" {
		return nil
	}
	return last.CodeExecResult
}
