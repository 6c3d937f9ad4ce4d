package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatdesk-dev/chatdesk/internal/cli/agentselect"
	"github.com/chatdesk-dev/chatdesk/internal/cli/client"
	"github.com/chatdesk-dev/chatdesk/internal/cli/userconfig"
)

// NewChatsCmd creates the chats command group
func NewChatsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage your chats",
	}

	cmd.AddCommand(newChatsListCmd(app))
	cmd.AddCommand(newChatsNewCmd(app))
	cmd.AddCommand(newChatsDeleteCmd(app))
	cmd.AddCommand(newChatsRenameCmd(app))
	cmd.AddCommand(newChatsContextCmd(app))
	cmd.AddCommand(newChatsShowCmd(app))

	return cmd
}

func newChatsListCmd(app *App) *cobra.Command {
	var agent string

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List your chats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return apiError(runChatsList(cmd.Context(), app, agent))
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Only list chats bound to this agent")

	return cmd
}

func runChatsList(ctx context.Context, app *App, agent string) error {
	if _, err := app.requireUser(); err != nil {
		return err
	}

	var (
		chats []client.Chat
		err   error
	)
	if agent != "" {
		a, ferr := agentselect.Find(agent)
		if ferr != nil {
			return ferr
		}
		chats, err = app.API.ListChatsByContext(ctx, a.ID)
	} else {
		chats, err = app.API.ListChats(ctx)
	}
	if err != nil {
		return err
	}

	if len(chats) == 0 {
		fmt.Fprintln(app.Out, "No chats found.")
		fmt.Fprintln(app.Out, "\nStart one with: chatdesk chat")
		return nil
	}

	current, _ := userconfig.GetCurrentChat()

	w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tTITLE\tAGENT\tMESSAGES\tUPDATED")
	fmt.Fprintln(w, "\t──\t─────\t─────\t────────\t───────")
	for _, chat := range chats {
		marker := ""
		if chat.ID == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			marker,
			chat.ID,
			displayTitle(chat),
			chat.Context,
			len(chat.Messages),
			formatTime(chat.UpdatedAt),
		)
	}
	return w.Flush()
}

func newChatsNewCmd(app *App) *cobra.Command {
	var agent string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new chat and make it current",
		RunE: func(cmd *cobra.Command, args []string) error {
			chat, err := createChat(cmd.Context(), app, agent)
			if err != nil {
				return apiError(err)
			}
			fmt.Fprintf(app.Out, "✓ Created chat %s\n", chat.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Agent ID or name (defaults to the selected agent)")

	return cmd
}

// createChat starts a chat bound to the resolved agent and makes it current
func createChat(ctx context.Context, app *App, agent string) (*client.Chat, error) {
	if _, err := app.requireUser(); err != nil {
		return nil, err
	}

	a, err := agentselect.ResolveAgent(agent)
	if err != nil {
		return nil, err
	}

	chat, err := app.API.CreateChat(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	if err := userconfig.SetCurrentChat(chat.ID); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to save current chat")
	}
	return chat, nil
}

func newChatsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <chat-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a chat",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return apiError(runChatsDelete(cmd.Context(), app, args[0]))
		},
	}
}

func runChatsDelete(ctx context.Context, app *App, chatID string) error {
	if _, err := app.requireUser(); err != nil {
		return err
	}

	if err := app.API.DeleteChat(ctx, chatID); err != nil {
		return err
	}

	if current, _ := userconfig.GetCurrentChat(); current == chatID {
		_ = userconfig.SetCurrentChat("")
	}

	fmt.Fprintf(app.Out, "✓ Deleted chat %s\n", chatID)
	return nil
}

func newChatsRenameCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <chat-id> <title>",
		Short: "Rename a chat",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.requireUser(); err != nil {
				return apiError(err)
			}
			chat, err := app.API.UpdateChatTitle(cmd.Context(), args[0], args[1])
			if err != nil {
				return apiError(err)
			}
			fmt.Fprintf(app.Out, "✓ Renamed chat %s to %q\n", chat.ID, chat.Title)
			return nil
		},
	}
}

func newChatsContextCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "context <chat-id> <agent>",
		Short: "Switch the agent a chat answers from",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.requireUser(); err != nil {
				return apiError(err)
			}
			a, err := agentselect.Find(args[1])
			if err != nil {
				return err
			}
			chat, err := app.API.UpdateChatContext(cmd.Context(), args[0], a.ID)
			if err != nil {
				return apiError(err)
			}
			fmt.Fprintf(app.Out, "✓ Chat %s now uses %s\n", chat.ID, a.Name)
			return nil
		},
	}
}

func newChatsShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show [chat-id]",
		Short: "Print a chat's messages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.requireUser(); err != nil {
				return apiError(err)
			}
			chatID, err := chatIDArg(args)
			if err != nil {
				return err
			}
			chat, err := app.API.GetChat(cmd.Context(), chatID)
			if err != nil {
				return apiError(err)
			}
			printTranscript(app.Out, chat)
			return nil
		},
	}
}

// chatIDArg returns the explicit chat ID or the current chat
func chatIDArg(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	current, err := userconfig.GetCurrentChat()
	if err != nil {
		return "", err
	}
	if current == "" {
		return "", fmt.Errorf("no current chat. Pass a chat ID or run 'chatdesk chats new'")
	}
	return current, nil
}

func displayTitle(chat client.Chat) string {
	if chat.Title == "" {
		return "(untitled)"
	}
	return chat.Title
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
