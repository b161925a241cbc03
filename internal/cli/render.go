// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/silohub/chat/internal/model"
	"github.com/silohub/chat/internal/util"
)

// =============================================================================
// CONVERSATION RENDERING
// =============================================================================

// renderConversation prints every message of conv.
func renderConversation(w io.Writer, conv *model.Conversation) {
	title := conv.Title
	if title == "" {
		title = model.DefaultTitle
	}
	fmt.Fprintln(w, TitleStyle.Render(util.SingleLine(title)))
	fmt.Fprintln(w, DimStyle.Render(conv.ID))
	fmt.Fprintln(w, RenderSeparatorAdaptive())

	for _, msg := range conv.Messages {
		renderMessage(w, msg)
	}
}

// renderMessage prints one message with its role label.
func renderMessage(w io.Writer, msg *model.ChatMessage) {
	if msg == nil {
		return
	}
	label := RoleStyle(msg.Role).Render(msg.Role.DisplayName() + ":")
	stamp := DimStyle.Render(msg.Date.Local().Format("15:04:05"))
	fmt.Fprintf(w, "%s %s\n", label, stamp)

	switch msg.Role {
	case model.RoleTool:
		renderToolMessage(w, msg)
	case model.RoleUser:
		fmt.Fprintln(w, WrapText(msg.Content.String(), 0))
		for _, img := range msg.Content.Images() {
			fmt.Fprintln(w, DimStyle.Render("[image] "+img))
		}
	default:
		fmt.Fprintln(w, WrapText(msg.Text(), 0))
	}
	if msg.Feedback != "" && msg.Feedback != model.FeedbackNeutral {
		fmt.Fprintln(w, DimStyle.Render("feedback: "+string(msg.Feedback)))
	}
	fmt.Fprintln(w)
}

// renderToolMessage prints citations as a source list, or a short note for
// other tool payloads.
func renderToolMessage(w io.Writer, msg *model.ChatMessage) {
	if citations := model.ParseCitations(msg); len(citations) > 0 {
		renderCitations(w, citations)
		return
	}
	if chart := model.ParseGeneratedChart(msg); len(chart) > 0 {
		fmt.Fprintln(w, DimStyle.Render("[generated chart]"))
		return
	}
	fmt.Fprintln(w, DimStyle.Render(util.TruncateWidth(util.SingleLine(msg.Text()), GetTerminalWidth()-4)))
}

func renderCitations(w io.Writer, citations []model.Citation) {
	fmt.Fprintln(w, DimStyle.Render("Sources:"))
	for i, c := range citations {
		name := c.Title
		if name == "" {
			name = c.FilePath
		}
		if name == "" {
			name = c.URL
		}
		line := fmt.Sprintf("  [%d] %s", i+1, util.SingleLine(name))
		if c.URL != "" && c.URL != name {
			line += " " + DimStyle.Render(c.URL)
		}
		fmt.Fprintln(w, line)
	}
}

// =============================================================================
// HISTORY TABLE
// =============================================================================

const (
	idColumnWidth    = 36
	titleColumnWidth = 32
	countColumnWidth = 5
)

// renderHistoryTable prints conversation metadata as aligned columns.
func renderHistoryTable(w io.Writer, metas []model.ConversationMeta) {
	if len(metas) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No conversations."))
		return
	}

	header := strings.Join([]string{
		util.PadRight("ID", idColumnWidth),
		util.PadRight("TITLE", titleColumnWidth),
		util.PadRight("MSGS", countColumnWidth),
		"UPDATED",
	}, "  ")
	fmt.Fprintln(w, LabelStyle.Width(0).Bold(true).Render(header))

	for _, m := range metas {
		title := m.Title
		if title == "" {
			title = model.DefaultTitle
		}
		updated := m.UpdatedAt
		if updated.IsZero() {
			updated = m.CreatedAt
		}
		count := "-"
		if m.MessageCount > 0 {
			count = fmt.Sprintf("%d", m.MessageCount)
		}
		fmt.Fprintf(w, "%s  %s  %s  %s\n",
			DimStyle.Render(util.PadRight(m.ID, idColumnWidth)),
			util.PadRight(util.SingleLine(title), titleColumnWidth),
			util.PadRight(count, countColumnWidth),
			DimStyle.Render(updated.Local().Format("2006-01-02 15:04")),
		)
	}
}

// metasFromConversations builds list rows from backend conversations.
func metasFromConversations(convs []*model.Conversation) []model.ConversationMeta {
	metas := make([]model.ConversationMeta, 0, len(convs))
	for _, c := range convs {
		if c != nil {
			metas = append(metas, c.Meta())
		}
	}
	return metas
}

// parseFeedback accepts the rating names and their short forms.
func parseFeedback(s string) (model.Feedback, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "up", "+", "good":
		return model.FeedbackPositive, nil
	case "negative", "down", "-", "bad":
		return model.FeedbackNegative, nil
	case "neutral", "none", "clear":
		return model.FeedbackNeutral, nil
	}
	return "", &UsageError{Message: fmt.Sprintf("invalid feedback %q (use positive, negative or neutral)", s)}
}
