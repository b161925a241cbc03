// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/silohub/chat/internal/chat"
	"github.com/silohub/chat/internal/model"
)

// askResult is the --json output of ask.
type askResult struct {
	ConversationID string           `json:"conversation_id,omitempty"`
	Title          string           `json:"title,omitempty"`
	Outcome        string           `json:"outcome"`
	Answer         string           `json:"answer,omitempty"`
	AnswerID       string           `json:"answer_id,omitempty"`
	Sources        []model.Citation `json:"sources,omitempty"`
	Error          string           `json:"error,omitempty"`
	Kind           string           `json:"kind,omitempty"`
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		conversationID string
		images         []string
		jsonOut        bool
	)

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send one prompt and stream the answer",
		Long: `Send one prompt and print the answer as it streams in.

The prompt is taken from the arguments, or from stdin when no arguments are
given. Use --conversation to continue an existing conversation.`,
		Example: `  silochat ask "Summarize the quarterly report"
  echo "Translate to French: good morning" | silochat ask
  silochat ask --image https://example.com/chart.png "What does this show?"
  silochat ask --conversation 3f2a... "And the year before?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			content := buildContent(prompt, images)

			return runWithApp(cmd, opts, func(ctx context.Context, app *App) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
				defer stop()

				if jsonOut {
					app.SetStreaming(false)
				}
				if conversationID != "" {
					if _, err := app.Sync.Open(ctx, conversationID); err != nil {
						return err
					}
				}

				res, err := app.Controller.Send(ctx, content, conversationID)
				if err != nil {
					return &UsageError{Message: err.Error()}
				}

				if jsonOut {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if err := enc.Encode(newAskResult(res)); err != nil {
						return err
					}
					return exchangeError(res)
				}
				printAskResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
				return exchangeError(res)
			})
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "Continue the conversation with this ID")
	cmd.Flags().StringArrayVar(&images, "image", nil, "Attach an image URL (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON instead of streaming")
	return cmd
}

// readPrompt joins args, or reads stdin when there are none.
func readPrompt(args []string, stdin io.Reader) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && stdin != nil && !isTerminal(stdin) {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return "", &UsageError{Message: "a prompt is required"}
	}
	return prompt, nil
}

// buildContent returns plain text, or a multi-part prompt when images are
// attached.
func buildContent(prompt string, images []string) model.Content {
	if len(images) == 0 {
		return model.Text(prompt)
	}
	parts := []model.Part{model.TextPart(prompt)}
	for _, url := range images {
		if url = strings.TrimSpace(url); url != "" {
			parts = append(parts, model.ImagePart(url))
		}
	}
	return model.Parts(parts...)
}

// printAskResult finishes the streamed answer and prints what followed it.
func printAskResult(out, errOut io.Writer, res *chat.Result) {
	switch res.Outcome {
	case chat.OutcomeSuccess:
		fmt.Fprintln(out)
		if res.Tool != nil {
			if citations := model.ParseCitations(res.Tool); len(citations) > 0 {
				fmt.Fprintln(out)
				renderCitations(out, citations)
			}
		}
		if res.Err != nil {
			fmt.Fprintln(errOut, WarningStyle.Render("[Warning] ")+lastErrorText(res.Conversation))
		}
	case chat.OutcomeError:
		if res.Assistant != nil {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(errOut, ErrorStyle.Render("[Error] ")+lastErrorText(res.Conversation))
	case chat.OutcomeAborted:
		fmt.Fprintln(errOut)
		fmt.Fprintln(errOut, WarningStyle.Render("[Cancelled]"))
	}
}

// lastErrorText returns the text of the trailing error message.
func lastErrorText(conv *model.Conversation) string {
	if conv == nil {
		return ""
	}
	if last := conv.LastMessage(); last != nil && last.IsError() {
		return last.Text()
	}
	return ""
}

func newAskResult(res *chat.Result) askResult {
	out := askResult{Outcome: res.Outcome.String()}
	if res.Conversation != nil {
		out.ConversationID = res.Conversation.ID
		out.Title = res.Conversation.Title
	}
	if res.Assistant != nil {
		out.Answer = res.Assistant.Text()
		out.AnswerID = res.Assistant.ID
	}
	if res.Tool != nil {
		out.Sources = model.ParseCitations(res.Tool)
	}
	if res.Err != nil {
		out.Error = lastErrorText(res.Conversation)
		if out.Error == "" {
			out.Error = res.Err.Error()
		}
		out.Kind = string(res.Kind)
	}
	return out
}
