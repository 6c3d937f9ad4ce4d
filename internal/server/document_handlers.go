package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chatdesk-dev/chatdesk/internal/models"
)

// UploadResponse lists the documents created by an upload
type UploadResponse struct {
	Message   string            `json:"message"`
	Documents []models.Document `json:"documents"`
}

// @Router /api/documents [get]
func (s *Server) listDocuments(c *gin.Context) {
	var docs []models.Document
	if err := s.db.Omit("content").Order("created_at DESC").Find(&docs).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list documents")
		respondMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, docs)
}

// @Router /api/documents/upload [post]
func (s *Server) uploadDocuments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		respondMessage(c, http.StatusBadRequest, "No files uploaded")
		return
	}

	sessionData := accountOf(c)
	docs := make([]models.Document, 0, len(files))
	for _, header := range files {
		doc, err := readUpload(sessionData.UserID, header)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", header.Filename).Msg("Rejected upload")
			respondMessage(c, http.StatusBadRequest, err.Error())
			return
		}
		docs = append(docs, *doc)
	}

	// All files are stored or none
	err = s.db.Transaction(func(tx *gorm.DB) error {
		for i := range docs {
			if err := tx.Create(&docs[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to store uploads")
		respondMessage(c, http.StatusInternalServerError, "Failed to store documents")
		return
	}

	s.logger.Info().Int("count", len(docs)).Str("user_id", sessionData.UserID).Msg("Documents uploaded")
	c.JSON(http.StatusCreated, UploadResponse{
		Message:   "Files uploaded successfully",
		Documents: docs,
	})
}

// @Router /api/documents/{id} [delete]
func (s *Server) deleteDocument(c *gin.Context) {
	var doc models.Document
	if err := models.FindByID(s.db.Omit("content"), c.Param("id"), &doc); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondMessage(c, http.StatusNotFound, "Document not found")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find document")
		respondMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Chat{}).Where("document_id = ?", doc.ID).Update("document_id", "").Error; err != nil {
			return err
		}
		return tx.Delete(&models.Document{}, "id = ?", doc.ID).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete document")
		respondMessage(c, http.StatusInternalServerError, "Failed to delete document")
		return
	}

	c.Status(http.StatusNoContent)
}
