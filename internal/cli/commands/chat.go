package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/chatdesk-dev/chatdesk/internal/cli/client"
	"github.com/chatdesk-dev/chatdesk/internal/cli/session"
	"github.com/chatdesk-dev/chatdesk/internal/cli/userconfig"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true)

	modelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))
)

// LineReader reads one line of user input.
type LineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// linerReader adds history and line editing on a terminal.
type linerReader struct {
	line *liner.State
}

func newLinerReader() *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &linerReader{line: line}
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

func (r *linerReader) Close() error {
	return r.line.Close()
}

// NewChatCmd creates the interactive chat command
func NewChatCmd(app *App) *cobra.Command {
	var agent string

	cmd := &cobra.Command{
		Use:   "chat [chat-id]",
		Short: "Chat interactively (resumes the current chat)",
		Long: `Chat interactively with the assistant.

Without a chat ID the current chat is resumed, or a new one is started.

Inside the chat:
  /file <path>  attach a document to the chat
  /exit         leave`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := newLinerReader()
			defer reader.Close()
			return apiError(runChat(cmd.Context(), app, reader, args, agent))
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Agent for a new chat")

	return cmd
}

func runChat(ctx context.Context, app *App, reader LineReader, args []string, agent string) error {
	if _, err := app.requireUser(); err != nil {
		return err
	}

	chat, err := openChat(ctx, app, args, agent)
	if err != nil {
		return err
	}

	fmt.Fprintln(app.Out, infoStyle.Render(fmt.Sprintf("Chat %s. Type /exit to leave, /file <path> to attach a document.", chat.ID)))
	printTranscript(app.Out, chat)

	for {
		input, err := reader.Prompt(promptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C, Ctrl+D and closed input all end the session
			fmt.Fprintln(app.Out)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			done, err := handleSlashCommand(ctx, app, chat, input)
			if err != nil {
				if client.IsTokenExpired(err) || app.Session.State() != session.StateAuthenticated {
					return nil
				}
				fmt.Fprintf(app.ErrOut, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if done {
				return nil
			}
			continue
		}

		updated, err := app.API.SendMessage(ctx, chat, input)
		if err != nil {
			if client.IsTokenExpired(err) || app.Session.State() != session.StateAuthenticated {
				return nil
			}
			fmt.Fprintf(app.ErrOut, "%s %v\n", errorStyle.Render("[Error]"), err)
			continue
		}

		printNewMessages(app.Out, chat, updated)
		*chat = *updated
	}
}

// openChat loads the requested or current chat, or starts a new one
func openChat(ctx context.Context, app *App, args []string, agent string) (*client.Chat, error) {
	chatID := ""
	if len(args) > 0 {
		chatID = args[0]
	} else if current, err := userconfig.GetCurrentChat(); err == nil {
		chatID = current
	}

	if chatID == "" {
		return createChat(ctx, app, agent)
	}

	chat, err := app.API.GetChat(ctx, chatID)
	if err != nil {
		var apiErr *client.Error
		if len(args) == 0 && errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			// Current chat was deleted elsewhere
			return createChat(ctx, app, agent)
		}
		return nil, err
	}

	if err := userconfig.SetCurrentChat(chat.ID); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to save current chat")
	}
	return chat, nil
}

// handleSlashCommand runs a /command. It reports whether the chat should end.
func handleSlashCommand(ctx context.Context, app *App, chat *client.Chat, input string) (bool, error) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true, nil
	case "/file":
		if arg == "" {
			return false, fmt.Errorf("usage: /file <path>")
		}
		updated, err := attachFile(ctx, app, chat.ID, arg)
		if err != nil {
			return false, err
		}
		*chat = *updated
		fmt.Fprintln(app.Out, infoStyle.Render(fmt.Sprintf("Attached %s", filepath.Base(arg))))
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
}

func attachFile(ctx context.Context, app *App, chatID, path string) (*client.Chat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return app.API.ProcessDocument(ctx, chatID, path, f)
}

func printTranscript(out io.Writer, chat *client.Chat) {
	for _, m := range chat.Messages {
		printMessage(out, m)
	}
}

// printNewMessages prints the messages updated has beyond before
func printNewMessages(out io.Writer, before, updated *client.Chat) {
	start := len(before.Messages)
	if start > len(updated.Messages) {
		start = 0
	}
	for _, m := range updated.Messages[start:] {
		if m.Sender == client.SenderUser {
			continue
		}
		printMessage(out, m)
	}
}

func printMessage(out io.Writer, m client.Message) {
	label := modelStyle.Render("assistant")
	if m.Sender == client.SenderUser {
		label = userStyle.Render("you")
	}
	fmt.Fprintf(out, "%s: %s\n", label, m.Text)
}
