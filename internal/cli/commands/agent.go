package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatdesk-dev/chatdesk/internal/cli/agentselect"
	"github.com/chatdesk-dev/chatdesk/internal/cli/userconfig"
)

// NewAgentCmd creates the agent command
func NewAgentCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent [id-or-name]",
		Short: "Select the agent new chats answer from",
		Long: `Select the agent new chats answer from.

If no param is provided, an interactive prompt will be shown.

Examples:
  $ chatdesk agent                # Interactive selection
  $ chatdesk agent miscellaneous  # Select by ID
  $ chatdesk agent "Comp Adm"     # Select by name`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var idOrName string
			if len(args) > 0 {
				idOrName = args[0]
			}
			return runAgent(app, idOrName)
		},
	}

	return cmd
}

func runAgent(app *App, idOrName string) error {
	var (
		agent *agentselect.Agent
		err   error
	)

	if idOrName != "" {
		agent, err = agentselect.Find(idOrName)
	} else {
		current, _ := userconfig.GetSelectedContext()
		agent, err = agentselect.PromptAgentSelection(current)
	}
	if err != nil {
		return err
	}

	if err := userconfig.SetSelectedContext(agent.ID); err != nil {
		return fmt.Errorf("failed to save selected agent: %w", err)
	}

	fmt.Fprintf(app.Out, "Selected agent: %s (%s)\n", agent.Name, agent.ID)
	return nil
}
