package agentselect

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/chatdesk-dev/chatdesk/internal/cli/userconfig"
)

// Agent is a knowledge context a chat can answer from
type Agent struct {
	ID   string
	Name string
}

// Agents are the contexts offered by the backend, in display order
var Agents = []Agent{
	{ID: "compatibilizacionFacultades", Name: "Chat"},
	{ID: "consolidadoFacultades", Name: "Comp Facul"},
	{ID: "compatibilizacionAdministrativo", Name: "Comp Adm"},
	{ID: "consolidadoAdministrativo", Name: "Consolidado Facul"},
	{ID: "miscellaneous", Name: "Consolidado Adm"},
}

// ResolveAgent determines which agent context to use:
// 1. the explicit id or name, if given
// 2. the agent saved in the user config
// 3. the first agent
func ResolveAgent(idOrName string) (*Agent, error) {
	if idOrName != "" {
		return Find(idOrName)
	}

	selected, err := userconfig.GetSelectedContext()
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	if selected != "" {
		if agent, err := Find(selected); err == nil {
			return agent, nil
		}
		// Saved agent no longer offered
		_ = userconfig.SetSelectedContext("")
	}

	return &Agents[0], nil
}

// PromptAgentSelection shows an interactive prompt for the user to select an agent
func PromptAgentSelection(current string) (*Agent, error) {
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Name | cyan }} ({{ .ID | faint }})",
		Inactive: "  {{ .Name }} ({{ .ID | faint }})",
		Selected: "{{ .Name | green }}",
	}

	cursor := 0
	for i, a := range Agents {
		if a.ID == current {
			cursor = i
		}
	}

	prompt := promptui.Select{
		Label:     "Select an agent",
		Items:     Agents,
		Templates: templates,
		Size:      10,
		CursorPos: cursor,
	}

	index, _, err := prompt.Run()
	if err != nil {
		return nil, fmt.Errorf("agent selection cancelled: %w", err)
	}

	return &Agents[index], nil
}

// Find returns the agent with the given ID or display name (case-insensitive)
func Find(idOrName string) (*Agent, error) {
	for i := range Agents {
		if Agents[i].ID == idOrName {
			return &Agents[i], nil
		}
	}
	for i := range Agents {
		if strings.EqualFold(Agents[i].Name, idOrName) {
			return &Agents[i], nil
		}
	}
	return nil, fmt.Errorf("agent '%s' not found", idOrName)
}
