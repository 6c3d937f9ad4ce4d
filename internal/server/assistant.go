package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/chatdesk-dev/chatdesk/internal/models"
)

const (
	senderUser  = "user"
	senderModel = "model"
)

// HistoryPart is one text part of a conversation turn
type HistoryPart struct {
	Text string `json:"text"`
}

// HistoryEntry is one conversation turn as sent by the clients
type HistoryEntry struct {
	Role  string        `json:"role"`
	Parts []HistoryPart `json:"parts"`
}

// Text joins the entry's parts
func (e HistoryEntry) Text() string {
	texts := make([]string, 0, len(e.Parts))
	for _, p := range e.Parts {
		texts = append(texts, p.Text)
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

// Prompt is everything the assistant sees for one answer
type Prompt struct {
	Context  string
	Document *models.Document
	History  []HistoryEntry
}

// Assistant produces the model's answer to the last user turn
type Assistant interface {
	Reply(ctx context.Context, prompt Prompt) (string, error)
}

// EchoAssistant answers deterministically from the prompt. It stands in for
// a real model during local development.
type EchoAssistant struct{}

func (EchoAssistant) Reply(_ context.Context, prompt Prompt) (string, error) {
	if len(prompt.History) == 0 {
		return "", fmt.Errorf("empty conversation")
	}
	last := prompt.History[len(prompt.History)-1]

	var b strings.Builder
	if prompt.Context != "" {
		fmt.Fprintf(&b, "[%s] ", prompt.Context)
	}
	if prompt.Document != nil {
		fmt.Fprintf(&b, "(%s) ", prompt.Document.Name)
	}
	fmt.Fprintf(&b, "You said: %s", last.Text())
	return b.String(), nil
}
