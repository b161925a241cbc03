// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	"github.com/silohub/chat/internal/model"
	"github.com/silohub/chat/internal/stream"
)

// ExecSink receives execution results unpacked from an assistant context or
// a tool message, keyed by the answer id.
type ExecSink func(answerID string, results []model.ExecResult)

// DeltaSink receives each piece of assistant text as it is folded.
type DeltaSink func(answerID, text string)

// Aggregator folds stream fragments into the running assistant and tool
// messages of one exchange. It is not safe for concurrent use; each exchange
// owns its own.
type Aggregator struct {
	assistant *model.ChatMessage
	tool      *model.ChatMessage
	content   strings.Builder
	started   bool

	exec  ExecSink
	delta DeltaSink
	now   func() time.Time
}

// NewAggregator creates an aggregator. Either sink may be nil.
func NewAggregator(exec ExecSink, delta DeltaSink) *Aggregator {
	return &Aggregator{
		exec:  exec,
		delta: delta,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Fold applies one fragment. It returns true the first time a fragment
// carrying an assistant message is folded.
func (a *Aggregator) Fold(frag *stream.Fragment) (startedNow bool) {
	if frag == nil {
		return false
	}
	now := a.now()

	for _, d := range frag.Messages() {
		switch d.Role {
		case model.RoleAssistant:
			if a.foldAssistant(frag.ID, d, now) {
				startedNow = true
			}
		case model.RoleTool:
			// A tool message delivered directly replaces the running one.
			text := d.Text()
			a.tool = &model.ChatMessage{
				ID:      frag.ID,
				Role:    model.RoleTool,
				Content: model.Text(text),
				Date:    now,
			}
			if results, ok := model.ParseExecResults(text); ok && a.exec != nil {
				a.exec(frag.ID, results)
			}
		}
	}
	return startedNow
}

func (a *Aggregator) foldAssistant(id string, d stream.Delta, now time.Time) bool {
	if a.assistant == nil {
		a.assistant = &model.ChatMessage{Role: model.RoleAssistant}
	}
	a.assistant.ID = id
	a.assistant.Date = now

	text := d.Text()
	a.content.WriteString(text)
	a.assistant.Content = model.Text(a.content.String())

	if ctx := string(d.Context); ctx != "" {
		a.assistant.Context = ctx
		a.tool = model.NewToolMessage(ctx)
		if results, ok := model.ParseExecResults(ctx); ok && a.exec != nil {
			a.exec(id, results)
		}
	}

	if a.delta != nil && text != "" {
		a.delta(id, text)
	}

	if a.started {
		return false
	}
	a.started = true
	return true
}

// Started reports whether an assistant fragment has been folded.
func (a *Aggregator) Started() bool {
	return a.started
}

// Result returns copies of the running assistant and tool messages. Either
// may be nil.
func (a *Aggregator) Result() (assistant, tool *model.ChatMessage) {
	return a.assistant.Clone(), a.tool.Clone()
}

// Messages returns the messages to append to the conversation:
// [tool, assistant] or [assistant]. It is empty when no assistant text
// arrived.
func (a *Aggregator) Messages() []*model.ChatMessage {
	assistant, tool := a.Result()
	if assistant == nil {
		return nil
	}
	if tool != nil {
		return []*model.ChatMessage{tool, assistant}
	}
	return []*model.ChatMessage{assistant}
}
