// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/silohub/chat/internal/config"
	"github.com/silohub/chat/internal/export"
	"github.com/silohub/chat/internal/model"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader reads one line of user input.
type lineReader interface {
	Prompt(prompt string) (string, error)
}

// linerInput provides input history and line editing for interactive chat.
type linerInput struct {
	line        *liner.State
	historyFile string
}

func newLinerInput() *linerInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	in := &linerInput{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
	return in
}

// Prompt reads a line and records it in the input history.
func (l *linerInput) Prompt(prompt string) (string, error) {
	input, err := l.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		l.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the input history with owner-only permissions and restores
// the terminal.
func (l *linerInput) Close() {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(l.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			l.line.WriteHistory(f)
			f.Close()
		}
	}
	l.line.Close()
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

func newChatCmd(opts *rootOptions) *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session. Answers stream as they arrive.
Press Ctrl+C while an answer is streaming to stop it. Type /help for commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := RequiresTTY("chat"); err != nil {
				return &UsageError{Message: err.Error() + " (use 'silochat ask' for scripts)"}
			}
			return runWithApp(cmd, opts, func(ctx context.Context, app *App) error {
				in := newLinerInput()
				defer in.Close()

				s := newChatSession(app, in, cmd.OutOrStdout(), cmd.ErrOrStderr())
				if conversationID != "" {
					if err := s.open(ctx, conversationID); err != nil {
						return err
					}
				}
				return s.run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Resume the conversation with this ID")
	return cmd
}

// =============================================================================
// SESSION
// =============================================================================

// chatSession is one interactive REPL.
type chatSession struct {
	app    *App
	in     lineReader
	out    io.Writer
	errOut io.Writer

	conversationID string
	lastAnswerID   string
	exportDir      string
}

func newChatSession(app *App, in lineReader, out, errOut io.Writer) *chatSession {
	return &chatSession{
		app:       app,
		in:        in,
		out:       out,
		errOut:    errOut,
		exportDir: ".",
	}
}

// run is the read-eval-print loop. It returns when input ends or the user
// quits.
func (s *chatSession) run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				if n := s.app.Controller.StopGenerating(); n > 0 {
					fmt.Fprintln(s.errOut, "\n"+WarningStyle.Render("[Cancelled]"))
				}
			}
		}
	}()

	s.printWelcome()

	for {
		input, err := s.in.Prompt(PromptStyle.Render("silochat> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or closed input.
			fmt.Fprintln(s.out)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			keepGoing, err := s.handleSlashCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(s.errOut, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if !keepGoing {
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		s.send(ctx, input)
	}
}

// send runs one exchange and prints its result.
func (s *chatSession) send(ctx context.Context, text string) {
	fmt.Fprint(s.out, RoleStyle(model.RoleAssistant).Render("Assistant: "))

	res, err := s.app.Controller.Send(ctx, model.Text(text), s.conversationID)
	if err != nil {
		fmt.Fprintf(s.errOut, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		return
	}
	printAskResult(s.out, s.errOut, res)

	if res.Conversation != nil {
		s.conversationID = res.Conversation.ID
	}
	if res.Assistant != nil {
		s.lastAnswerID = res.Assistant.ID
	}
}

// open selects a conversation and prints it.
func (s *chatSession) open(ctx context.Context, id string) error {
	conv, err := s.app.Sync.Open(ctx, id)
	if err != nil {
		return err
	}
	s.conversationID = conv.ID
	s.lastAnswerID = ""
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == model.RoleAssistant {
			s.lastAnswerID = conv.Messages[i].ID
			break
		}
	}
	renderConversation(s.out, conv)
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand runs a /command. It returns false when the session
// should end.
func (s *chatSession) handleSlashCommand(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "/quit", "/exit", "/q":
		return false, nil

	case "/help", "/?":
		s.printHelp()

	case "/new":
		s.app.Controller.NewChat()
		s.conversationID = ""
		s.lastAnswerID = ""
		fmt.Fprintln(s.out, DimStyle.Render("Started a new conversation."))

	case "/clear":
		if s.conversationID == "" {
			return true, errors.New("no conversation selected")
		}
		if err := s.app.Controller.ClearChat(ctx, s.conversationID); err != nil {
			return true, err
		}
		s.lastAnswerID = ""
		fmt.Fprintln(s.out, DimStyle.Render("Conversation cleared."))

	case "/delete":
		if s.conversationID == "" {
			return true, errors.New("no conversation selected")
		}
		if err := s.app.Controller.DeleteChat(ctx, s.conversationID); err != nil {
			return true, err
		}
		s.app.Controller.NewChat()
		s.conversationID = ""
		s.lastAnswerID = ""
		fmt.Fprintln(s.out, DimStyle.Render("Conversation deleted."))

	case "/history":
		renderHistoryList(s.out, s.app.Store.List())

	case "/open":
		if len(args) == 0 {
			return true, &UsageError{Message: "usage: /open <number|id>"}
		}
		id := args[0]
		if n, err := strconv.Atoi(id); err == nil {
			metas := s.app.Store.List()
			if n < 1 || n > len(metas) {
				return true, fmt.Errorf("no conversation #%d", n)
			}
			id = metas[n-1].ID
		}
		return true, s.open(ctx, id)

	case "/feedback":
		if s.lastAnswerID == "" {
			return true, errors.New("no answer to rate")
		}
		if len(args) == 0 {
			return true, &UsageError{Message: "usage: /feedback positive|negative|neutral"}
		}
		fb, err := parseFeedback(args[0])
		if err != nil {
			return true, err
		}
		if err := s.app.Controller.SetFeedback(ctx, s.lastAnswerID, fb); err != nil {
			return true, err
		}
		fmt.Fprintln(s.out, DimStyle.Render("Feedback recorded: "+string(fb)))

	case "/export":
		if s.conversationID == "" {
			return true, errors.New("no conversation selected")
		}
		conv, ok := s.app.Store.Conversation(s.conversationID)
		if !ok {
			return true, errors.New("conversation not found")
		}
		format := "markdown"
		if len(args) > 0 {
			format = args[0]
		}
		opts := export.DefaultOptions()
		opts.OutputDir = s.exportDir
		if len(args) > 1 {
			opts.OutputDir = args[1]
		}
		exp, err := export.ForFormat(format, opts)
		if err != nil {
			return true, err
		}
		path, err := export.ExportToFile(conv, exp, opts)
		if err != nil {
			return true, err
		}
		fmt.Fprintln(s.out, SuccessStyle.Render("Exported to ")+path)

	case "/status":
		s.printStatus()

	default:
		return true, &UsageError{Message: fmt.Sprintf("unknown command %s (try /help)", name)}
	}
	return true, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func (s *chatSession) printWelcome() {
	fmt.Fprintln(s.out, TitleStyle.Render("silochat"))
	fmt.Fprintf(s.out, "%s %s\n", RenderLabel("Service:", 10), s.app.Config.Service.BaseURL)
	h := s.app.Sync.Health()
	fmt.Fprintf(s.out, "%s %s %s\n", RenderLabel("History:", 10), s.app.Config.History.Backend, RenderStatus(string(h.Status)))
	fmt.Fprintln(s.out, DimStyle.Render("Type /help for commands, Ctrl+D to quit."))
	fmt.Fprintln(s.out)
}

func (s *chatSession) printHelp() {
	help := [][2]string{
		{"/new", "Start a new conversation"},
		{"/history", "List conversations"},
		{"/open <n|id>", "Open a conversation"},
		{"/clear", "Remove the messages of this conversation"},
		{"/delete", "Delete this conversation"},
		{"/feedback <rating>", "Rate the last answer (positive, negative, neutral)"},
		{"/export [format] [dir]", "Export this conversation (json, markdown, yaml)"},
		{"/status", "Show connection and history status"},
		{"/quit", "Exit"},
	}
	fmt.Fprintln(s.out, TitleStyle.Render("Commands"))
	for _, h := range help {
		fmt.Fprintf(s.out, "  %s %s\n", RenderLabel(h[0], 24), h[1])
	}
}

func (s *chatSession) printStatus() {
	h := s.app.Sync.Health()
	fmt.Fprintf(s.out, "%s %s\n", RenderLabel("Service:"), s.app.Config.Service.BaseURL)
	fmt.Fprintf(s.out, "%s %s %s\n", RenderLabel("History backend:"), s.app.Config.History.Backend, RenderStatus(string(h.Status)))
	fmt.Fprintf(s.out, "%s %v\n", RenderLabel("Server history:"), s.app.Sync.ServerManaged())
	fmt.Fprintf(s.out, "%s %d\n", RenderLabel("Conversations:"), len(s.app.Store.List()))
	current := s.conversationID
	if current == "" {
		current = "(new)"
	}
	fmt.Fprintf(s.out, "%s %s\n", RenderLabel("Current:"), current)
}

// renderHistoryList prints numbered conversations for /open.
func renderHistoryList(w io.Writer, metas []model.ConversationMeta) {
	if len(metas) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No conversations."))
		return
	}
	for i, m := range metas {
		title := m.Title
		if title == "" {
			title = model.DefaultTitle
		}
		fmt.Fprintf(w, "%3d. %s %s\n", i+1, title, DimStyle.Render(fmt.Sprintf("(%d messages)", m.MessageCount)))
	}
}
