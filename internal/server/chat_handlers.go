package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chatdesk-dev/chatdesk/internal/models"
)

const (
	defaultChatTitle = "New chat"
	maxTitleLength   = 60
	maxDocumentSize  = 10 << 20
)

// CreateChatRequest optionally binds the new chat to an agent context
type CreateChatRequest struct {
	InitialContext string `json:"initialContext"`
}

// UpdateTitleRequest renames a chat
type UpdateTitleRequest struct {
	NewTitle string `json:"newTitle"`
}

// UpdateContextRequest switches a chat's agent context
type UpdateContextRequest struct {
	NewContext string `json:"newContext"`
}

// SendMessageRequest carries the full history; the last entry is the new
// user turn
type SendMessageRequest struct {
	ConversationHistory []HistoryEntry `json:"conversationHistory"`
	DocumentID          string         `json:"documentId"`
	ChatID              string         `json:"chatId" binding:"required"`
}

// UpdatedChatResponse wraps a chat changed by a message or a document
type UpdatedChatResponse struct {
	UpdatedChat *models.Chat `json:"updatedChat"`
}

// loadChat fetches the caller's chat or writes the error response
func (s *Server) loadChat(c *gin.Context, chatID string) (*models.Chat, bool) {
	sessionData := accountOf(c)

	chat, err := models.FindChat(s.db, sessionData.UserID, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondMessage(c, http.StatusNotFound, "Chat not found")
			return nil, false
		}
		s.logger.Error().Err(err).Str("chat_id", chatID).Msg("Failed to load chat")
		respondMessage(c, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	return chat, true
}

func (s *Server) listChatsWhere(c *gin.Context, query string, args ...interface{}) {
	var chats []models.Chat
	err := s.db.Preload("Messages", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at ASC, id ASC")
	}).Where(query, args...).Order("updated_at DESC").Find(&chats).Error
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list chats")
		respondMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	for i := range chats {
		if chats[i].Messages == nil {
			chats[i].Messages = []models.Message{}
		}
	}
	c.JSON(http.StatusOK, chats)
}

// @Router /api/chats [get]
func (s *Server) listChats(c *gin.Context) {
	sessionData := accountOf(c)
	s.listChatsWhere(c, "user_id = ?", sessionData.UserID)
}

// @Router /api/chats/context/{name} [get]
func (s *Server) listChatsByContext(c *gin.Context) {
	sessionData := accountOf(c)
	s.listChatsWhere(c, "user_id = ? AND context = ?", sessionData.UserID, c.Param("name"))
}

// @Router /api/chats/{id} [get]
func (s *Server) getChat(c *gin.Context) {
	chat, ok := s.loadChat(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, chat)
}

// @Router /api/chats [post]
func (s *Server) createChat(c *gin.Context) {
	var req CreateChatRequest
	// Empty bodies are allowed
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondMessage(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	sessionData := accountOf(c)
	chat := &models.Chat{
		UserID:   sessionData.UserID,
		Title:    defaultChatTitle,
		Context:  strings.TrimSpace(req.InitialContext),
		Messages: []models.Message{},
	}
	if err := s.db.Create(chat).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create chat")
		respondMessage(c, http.StatusInternalServerError, "Failed to create chat")
		return
	}

	c.JSON(http.StatusCreated, chat)
}

// @Router /api/chats/{id} [delete]
func (s *Server) deleteChat(c *gin.Context) {
	chat, ok := s.loadChat(c, c.Param("id"))
	if !ok {
		return
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chat.ID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Chat{}, "id = ?", chat.ID).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Str("chat_id", chat.ID).Msg("Failed to delete chat")
		respondMessage(c, http.StatusInternalServerError, "Failed to delete chat")
		return
	}

	c.Status(http.StatusNoContent)
}

// @Router /api/chats/{id}/title [put]
func (s *Server) updateChatTitle(c *gin.Context) {
	var req UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	title := strings.TrimSpace(req.NewTitle)
	if title == "" {
		respondMessage(c, http.StatusBadRequest, "newTitle is required")
		return
	}

	chat, ok := s.loadChat(c, c.Param("id"))
	if !ok {
		return
	}

	chat.Title = title
	chat.UpdatedAt = time.Now()
	if err := s.updateChat(chat.ID, "title", title, chat.UpdatedAt); err != nil {
		s.logger.Error().Err(err).Msg("Failed to update chat title")
		respondMessage(c, http.StatusInternalServerError, "Failed to update chat")
		return
	}

	c.JSON(http.StatusOK, chat)
}

func (s *Server) updateChat(chatID, column string, value interface{}, at time.Time) error {
	return s.db.Model(&models.Chat{}).Where("id = ?", chatID).
		Updates(map[string]interface{}{column: value, "updated_at": at}).Error
}

// @Router /api/chats/{id}/context [post]
func (s *Server) updateChatContext(c *gin.Context) {
	var req UpdateContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	chat, ok := s.loadChat(c, c.Param("id"))
	if !ok {
		return
	}

	chat.Context = strings.TrimSpace(req.NewContext)
	chat.UpdatedAt = time.Now()
	if err := s.updateChat(chat.ID, "context", chat.Context, chat.UpdatedAt); err != nil {
		s.logger.Error().Err(err).Msg("Failed to update chat context")
		respondMessage(c, http.StatusInternalServerError, "Failed to update chat")
		return
	}

	c.JSON(http.StatusOK, chat)
}

// @Router /api/chat [post]
func (s *Server) sendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, bindingMessage(err))
		return
	}
	n := len(req.ConversationHistory)
	if n == 0 || req.ConversationHistory[n-1].Role != senderUser || req.ConversationHistory[n-1].Text() == "" {
		respondMessage(c, http.StatusBadRequest, "conversationHistory must end with a user message")
		return
	}

	chat, ok := s.loadChat(c, req.ChatID)
	if !ok {
		return
	}

	prompt := Prompt{Context: chat.Context, History: req.ConversationHistory}
	documentID := req.DocumentID
	if documentID == "" {
		documentID = chat.DocumentID
	}
	if documentID != "" {
		var doc models.Document
		if err := models.FindByID(s.db, documentID, &doc); err == nil {
			prompt.Document = &doc
		}
	}

	reply, err := s.assistant.Reply(c.Request.Context(), prompt)
	if err != nil {
		s.logger.Error().Err(err).Str("chat_id", chat.ID).Msg("Assistant failed")
		respondMessage(c, http.StatusBadGateway, "The assistant could not answer")
		return
	}

	userText := req.ConversationHistory[n-1].Text()
	if err := s.appendTurn(chat, userText, reply); err != nil {
		s.logger.Error().Err(err).Str("chat_id", chat.ID).Msg("Failed to store messages")
		respondMessage(c, http.StatusInternalServerError, "Failed to store messages")
		return
	}

	s.respondUpdatedChat(c, chat.UserID, chat.ID)
}

// appendTurn stores a user message and its answer. The first message of an
// untitled chat becomes its title.
func (s *Server) appendTurn(chat *models.Chat, userText, reply string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		msgs := []models.Message{
			{ChatID: chat.ID, Sender: senderUser, Text: userText},
			{ChatID: chat.ID, Sender: senderModel, Text: reply},
		}
		for i := range msgs {
			if err := tx.Create(&msgs[i]).Error; err != nil {
				return err
			}
		}

		updates := map[string]interface{}{"updated_at": time.Now()}
		if chat.Title == defaultChatTitle && len(chat.Messages) == 0 {
			updates["title"] = titleFrom(userText)
		}
		return tx.Model(&models.Chat{}).Where("id = ?", chat.ID).Updates(updates).Error
	})
}

func titleFrom(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxTitleLength {
		return string(r[:maxTitleLength]) + "…"
	}
	return text
}

func (s *Server) respondUpdatedChat(c *gin.Context, userID, chatID string) {
	chat, err := models.FindChat(s.db, userID, chatID)
	if err != nil {
		s.logger.Error().Err(err).Str("chat_id", chatID).Msg("Failed to reload chat")
		respondMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, UpdatedChatResponse{UpdatedChat: chat})
}

// @Router /api/process-document [post]
func (s *Server) processDocument(c *gin.Context) {
	chatID := c.PostForm("chatId")
	if chatID == "" {
		respondMessage(c, http.StatusBadRequest, "chatId is required")
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "file is required")
		return
	}

	chat, ok := s.loadChat(c, chatID)
	if !ok {
		return
	}

	doc, err := readUpload(chat.UserID, header)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", header.Filename).Msg("Rejected upload")
		respondMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		return tx.Model(&models.Chat{}).Where("id = ?", chat.ID).Update("document_id", doc.ID).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to attach document")
		respondMessage(c, http.StatusInternalServerError, "Failed to attach document")
		return
	}

	s.logger.Info().Str("chat_id", chat.ID).Str("document_id", doc.ID).Msg("Document attached")
	s.respondUpdatedChat(c, chat.UserID, chat.ID)
}

// readUpload reads one uploaded file into an unsaved document row
func readUpload(userID string, header *multipart.FileHeader) (*models.Document, error) {
	name := filepath.Base(header.Filename)
	if header.Size > maxDocumentSize {
		return nil, errors.New(name + " is larger than 10 MB")
	}

	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxDocumentSize+1))
	if err != nil {
		return nil, err
	}
	if len(content) > maxDocumentSize {
		return nil, errors.New(name + " is larger than 10 MB")
	}

	return &models.Document{
		UserID:  userID,
		Name:    name,
		Size:    int64(len(content)),
		Status:  "processed",
		Content: content,
	}, nil
}
