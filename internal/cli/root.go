package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatdesk-dev/chatdesk/internal/cli/commands"
)

var version = "dev" // Will be set during build

// offline commands run without configuration or a session
var offline = map[string]bool{
	"version":    true,
	"help":       true,
	"init":       true,
	"completion": true,
}

// NewRootCmd builds the chatdesk command tree
func NewRootCmd() *cobra.Command {
	app := &commands.App{}

	rootCmd := &cobra.Command{
		Use:   "chatdesk",
		Short: "chatdesk - chat with your document knowledge base",
		Long: `chatdesk CLI - Chat with agents grounded in your organization's documents.

Sign in, start chats bound to an agent, attach documents, and manage the
knowledge base and user accounts from the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if offline[cmd.Name()] {
				return nil
			}
			return app.Prepare(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Stop()
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chatdesk version %s\n", version)
		},
	})

	rootCmd.AddCommand(commands.NewInitCmd())
	rootCmd.AddCommand(commands.NewLoginCmd(app))
	rootCmd.AddCommand(commands.NewRegisterCmd(app))
	rootCmd.AddCommand(commands.NewLogoutCmd(app))
	rootCmd.AddCommand(commands.NewWhoamiCmd(app))
	rootCmd.AddCommand(commands.NewChatsCmd(app))
	rootCmd.AddCommand(commands.NewChatCmd(app))
	rootCmd.AddCommand(commands.NewDocsCmd(app))
	rootCmd.AddCommand(commands.NewUsersCmd(app))
	rootCmd.AddCommand(commands.NewAgentCmd(app))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
