package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	SenderUser  = "user"
	SenderModel = "model"
)

// Message is one entry of a chat conversation
type Message struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Chat represents a conversation owned by the current user
type Chat struct {
	ID         string    `json:"_id"`
	Title      string    `json:"title"`
	Context    string    `json:"context,omitempty"`
	DocumentID string    `json:"documentId,omitempty"`
	Messages   []Message `json:"messages"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// HistoryPart is a text fragment of a history entry
type HistoryPart struct {
	Text string `json:"text"`
}

// HistoryEntry is a conversation turn in the format the model endpoint expects
type HistoryEntry struct {
	Role  string        `json:"role"`
	Parts []HistoryPart `json:"parts"`
}

// SendMessageRequest represents the chat completion request
type SendMessageRequest struct {
	ConversationHistory []HistoryEntry `json:"conversationHistory"`
	DocumentID          string         `json:"documentId,omitempty"`
	ChatID              string         `json:"chatId"`
}

// UpdatedChatResponse wraps endpoints returning the chat after a change
type UpdatedChatResponse struct {
	UpdatedChat Chat `json:"updatedChat"`
}

var (
	ErrEmptyChatID = errors.New("chat ID is required")
	ErrEmptyTitle  = errors.New("new title must not be empty")
	ErrEmptyInput  = errors.New("message text must not be empty")
)

// BuildHistory converts stored messages plus the new user text into the
// model history format. Any sender other than "user" becomes "model".
func BuildHistory(messages []Message, text string) []HistoryEntry {
	history := make([]HistoryEntry, 0, len(messages)+1)
	for _, m := range messages {
		role := SenderModel
		if m.Sender == SenderUser {
			role = SenderUser
		}
		history = append(history, HistoryEntry{Role: role, Parts: []HistoryPart{{Text: m.Text}}})
	}
	return append(history, HistoryEntry{Role: SenderUser, Parts: []HistoryPart{{Text: text}}})
}

// ListChats returns all chats of the current user
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	if err := c.getJSON(ctx, "list chats", "/chats", &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// GetChat returns a chat with its messages
func (c *Client) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	if chatID == "" {
		return nil, ErrEmptyChatID
	}
	var chat Chat
	if err := c.getJSON(ctx, "get chat", "/chats/"+url.PathEscape(chatID), &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// CreateChat starts a new chat, optionally bound to an agent context
func (c *Client) CreateChat(ctx context.Context, initialContext string) (*Chat, error) {
	payload := map[string]string{}
	if initialContext != "" {
		payload["initialContext"] = initialContext
	}
	var chat Chat
	if err := c.sendJSON(ctx, "create chat", http.MethodPost, "/chats", payload, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// DeleteChat deletes a chat by ID
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	if chatID == "" {
		return ErrEmptyChatID
	}
	return c.sendJSON(ctx, "delete chat", http.MethodDelete, "/chats/"+url.PathEscape(chatID), nil, nil)
}

// UpdateChatTitle renames a chat and returns it as stored by the backend
func (c *Client) UpdateChatTitle(ctx context.Context, chatID, newTitle string) (*Chat, error) {
	if chatID == "" {
		return nil, ErrEmptyChatID
	}
	newTitle = strings.TrimSpace(newTitle)
	if newTitle == "" {
		return nil, ErrEmptyTitle
	}

	var chat Chat
	path := fmt.Sprintf("/chats/%s/title", url.PathEscape(chatID))
	if err := c.sendJSON(ctx, "update chat title", http.MethodPut, path, map[string]string{"newTitle": newTitle}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// UpdateChatContext switches the agent context a chat answers from
func (c *Client) UpdateChatContext(ctx context.Context, chatID, newContext string) (*Chat, error) {
	if chatID == "" {
		return nil, ErrEmptyChatID
	}
	var chat Chat
	path := fmt.Sprintf("/chats/%s/context", url.PathEscape(chatID))
	if err := c.sendJSON(ctx, "update chat context", http.MethodPost, path, map[string]string{"newContext": newContext}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChatsByContext returns the chats bound to an agent context
func (c *Client) ListChatsByContext(ctx context.Context, contextName string) ([]Chat, error) {
	var chats []Chat
	if err := c.getJSON(ctx, "list chats by context", "/chats/context/"+url.PathEscape(contextName), &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// SendMessage sends text with the chat's history and returns the updated chat,
// including the model's answer.
func (c *Client) SendMessage(ctx context.Context, chat *Chat, text string) (*Chat, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	var resp UpdatedChatResponse
	err := c.sendJSON(ctx, "send message", http.MethodPost, "/chat", SendMessageRequest{
		ConversationHistory: BuildHistory(chat.Messages, text),
		DocumentID:          chat.DocumentID,
		ChatID:              chat.ID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.UpdatedChat, nil
}

// ProcessDocument attaches a document to a chat and returns the updated chat
func (c *Client) ProcessDocument(ctx context.Context, chatID, filename string, content io.Reader) (*Chat, error) {
	if chatID == "" {
		return nil, ErrEmptyChatID
	}

	form := newMultipartForm()
	if err := form.addFile("file", filename, content); err != nil {
		return nil, err
	}
	if err := form.addField("chatId", chatID); err != nil {
		return nil, err
	}

	var resp UpdatedChatResponse
	if err := c.call(ctx, form.request("process document", "/process-document"), &resp); err != nil {
		return nil, err
	}
	return &resp.UpdatedChat, nil
}
