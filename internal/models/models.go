package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"_id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// User represents an account of the chat backend
type User struct {
	BaseModel
	Email        string    `json:"email" gorm:"unique;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Name         string    `json:"name"`
	Role         string    `json:"role" gorm:"not null;default:user"`
	UpdatedAt    time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// Chat is a conversation owned by a user, optionally bound to an agent
// context and an attached document
type Chat struct {
	BaseModel
	UserID     string    `json:"-" gorm:"not null;index"`
	Title      string    `json:"title"`
	Context    string    `json:"context,omitempty" gorm:"index"`
	DocumentID string    `json:"documentId,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	// Relationships
	Messages []Message `json:"messages" gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
}

// Message is one turn of a chat. Sender is "user" or "bot".
type Message struct {
	BaseModel
	ChatID string `json:"-" gorm:"not null;index"`
	Sender string `json:"sender" gorm:"not null"`
	Text   string `json:"text" gorm:"type:text"`
}

// Document is a file uploaded to the knowledge base
type Document struct {
	BaseModel
	UserID  string `json:"-" gorm:"index"`
	Name    string `json:"name" gorm:"not null"`
	Size    int64  `json:"size"`
	Status  string `json:"status,omitempty"`
	Content []byte `json:"-"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	models := []interface{}{
		&User{}, &Chat{}, &Message{}, &Document{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}

// FindChat loads a chat owned by userID with its messages in order
func FindChat(db *gorm.DB, userID, chatID string) (*Chat, error) {
	var chat Chat
	err := db.Preload("Messages", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at ASC, id ASC")
	}).Where("id = ? AND user_id = ?", chatID, userID).First(&chat).Error
	if err != nil {
		return nil, err
	}
	if chat.Messages == nil {
		chat.Messages = []Message{}
	}
	return &chat, nil
}
