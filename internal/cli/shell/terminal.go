package shell

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

// NewPrompter returns an interactive prompter when stdin is a terminal and a
// plain notice writer otherwise.
func NewPrompter(out io.Writer) Prompter {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return &SelectPrompter{}
	}
	return &NoticePrompter{Out: out}
}

// SelectPrompter blocks on a one-option promptui selection.
type SelectPrompter struct{}

func (p *SelectPrompter) Acknowledge(ctx context.Context, title, message string) error {
	templates := &promptui.SelectTemplates{
		Label:    "{{ . | red }}",
		Active:   "> {{ . | cyan }}",
		Inactive: "  {{ . }}",
		Selected: "{{ . | green }}",
	}

	prompt := promptui.Select{
		Label:     fmt.Sprintf("%s: %s", title, message),
		Items:     []string{"OK"},
		Templates: templates,
		HideHelp:  true,
	}

	if _, _, err := prompt.Run(); err != nil {
		return fmt.Errorf("acknowledgment cancelled: %w", err)
	}
	return nil
}

// NoticePrompter writes the notice and returns immediately.
type NoticePrompter struct {
	Out io.Writer
}

func (p *NoticePrompter) Acknowledge(ctx context.Context, title, message string) error {
	_, err := fmt.Fprintf(p.Out, "%s: %s\n", title, message)
	return err
}

// HintNavigator tells the user how to reach the login route.
type HintNavigator struct {
	Out io.Writer
}

func (n *HintNavigator) ToLogin() {
	fmt.Fprintln(n.Out, "Run 'chatdesk login' to sign in again.")
}
