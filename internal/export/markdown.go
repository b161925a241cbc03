// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/silohub/chat/internal/model"
	"github.com/silohub/chat/internal/util"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

type frontmatter struct {
	Title     string `yaml:"title"`
	ID        string `yaml:"id"`
	Date      string `yaml:"date,omitempty"`
	Updated   string `yaml:"updated,omitempty"`
	Messages  int    `yaml:"messages"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// Export converts a conversation to Markdown format.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}
	msgs := visibleMessages(conv, e.options)
	if len(msgs) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	title := conv.Title
	if title == "" {
		title = model.DeriveTitle(msgs)
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		fm := frontmatter{
			Title:     title,
			ID:        conv.ID,
			Messages:  len(msgs),
			Exported:  e.options.now().Format(time.RFC3339),
			Generator: "silochat",
		}
		if !conv.CreatedAt.IsZero() {
			fm.Date = conv.CreatedAt.Format(time.RFC3339)
		}
		if !conv.UpdatedAt.IsZero() {
			fm.Updated = conv.UpdatedAt.Format(time.RFC3339)
		}
		data, err := yaml.Marshal(fm)
		if err != nil {
			return nil, fmt.Errorf("encode frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(data)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(util.SingleLine(title)))

	if e.options.IncludeMetadata {
		fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(conv.CreatedAt))
		fmt.Fprintf(&sb, "- **Last Updated**: %s\n", formatTimestamp(conv.UpdatedAt))
		fmt.Fprintf(&sb, "- **Messages**: %d\n\n---\n\n", len(msgs))
	}

	for i, msg := range msgs {
		label := formatRoleLabel(msg.Role)
		if ts := formatShortTimestamp(msg.Date); e.options.IncludeTimestamps && ts != "" {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, ts)
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		switch msg.Role {
		case model.RoleTool:
			sb.WriteString(formatToolMessage(msg))
		case model.RoleError:
			sb.WriteString(quote(msg.Text()))
		default:
			sb.WriteString(strings.TrimSpace(msg.Text()))
			for _, img := range msg.Content.Images() {
				fmt.Fprintf(&sb, "\n\n![image](%s)", img)
			}
		}
		sb.WriteString("\n\n")

		if msg.Role == model.RoleAssistant && msg.Feedback != "" && msg.Feedback != model.FeedbackNeutral {
			fmt.Fprintf(&sb, "<sub>Feedback: %s</sub>\n\n", msg.Feedback)
		}

		if i < len(msgs)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func formatRoleLabel(role model.Role) string {
	switch role {
	case "":
		return "Unknown"
	case model.RoleUser:
		return "[User]"
	case model.RoleAssistant:
		return "[Assistant]"
	case model.RoleTool:
		return "[Tool]"
	case model.RoleError:
		return "[Error]"
	default:
		runes := []rune(string(role))
		return strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
}

// formatToolMessage renders citations as a source list and anything else as
// a fenced JSON block.
func formatToolMessage(msg *model.ChatMessage) string {
	if citations := model.ParseCitations(msg); len(citations) > 0 {
		var sb strings.Builder
		sb.WriteString("**Sources**:\n\n")
		for i, c := range citations {
			name := c.Title
			if name == "" {
				name = c.FilePath
			}
			if name == "" {
				name = fmt.Sprintf("Citation %d", i+1)
			}
			if c.URL != "" {
				fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, escapeMarkdown(name), c.URL)
			} else {
				fmt.Fprintf(&sb, "%d. %s\n", i+1, escapeMarkdown(name))
			}
		}
		return strings.TrimRight(sb.String(), "\n")
	}
	return "```json\n" + strings.TrimSpace(msg.Text()) + "\n```"
}

func quote(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

// escapeMarkdown escapes characters that would break formatting in headings
// and list items.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"[", "\\[",
		"]", "\\]",
	)
	return r.Replace(s)
}
