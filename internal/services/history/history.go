package history

import (
	"context"
	"time"

	"github.com/halcyon-labs/persona-proxy/internal/models"
	"github.com/halcyon-labs/persona-proxy/internal/services/database"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Turn is one persisted message of a conversation. Provider, model and token
// usage are only set on assistant turns.
type Turn struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID string `gorm:"index;size:128;not null"`
	Role           string `gorm:"size:16;not null"`
	Content        string `gorm:"type:text;not null"`
	Provider       string `gorm:"size:64"`
	Model          string `gorm:"size:128"`
	PromptTokens   int64
	ResponseTokens int64
	CreatedAt      time.Time
}

// Store persists conversation turns and reloads recent context for prompts
type Store struct {
	db *database.DB
}

// NewStore creates a store and migrates its schema
func NewStore(db *database.DB) (*Store, error) {
	if err := db.AutoMigrate(&Turn{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Append persists one turn
func (s *Store) Append(ctx context.Context, turn *Turn) error {
	if err := s.db.WithContext(ctx).Create(turn).Error; err != nil {
		fiberlog.Errorf("history: failed to append turn for conversation %s: %v", turn.ConversationID, err)
		return err
	}
	return nil
}

// RecordExchange persists a user turn and the assistant reply it produced
func (s *Store) RecordExchange(ctx context.Context, conversationID, userContent string, result *models.ChatResult) error {
	turns := []Turn{
		{
			ConversationID: conversationID,
			Role:           string(models.RoleUser),
			Content:        userContent,
		},
		{
			ConversationID: conversationID,
			Role:           string(models.RoleAssistant),
			Content:        result.Content,
			Provider:       result.Provider,
			Model:          result.Model,
			PromptTokens:   result.Usage.PromptTokens,
			ResponseTokens: result.Usage.ResponseTokens,
		},
	}
	return s.db.WithContext(ctx).Create(&turns).Error
}

// Recent returns the last n turns of a conversation as canonical messages,
// oldest first, ready to precede the incoming user message.
func (s *Store) Recent(ctx context.Context, conversationID string, n int) ([]models.Message, error) {
	var turns []Turn
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(n).
		Find(&turns).Error
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order
	messages := make([]models.Message, len(turns))
	for i, turn := range turns {
		messages[len(turns)-1-i] = models.Message{
			Role:    models.Role(turn.Role),
			Content: turn.Content,
		}
	}
	return messages, nil
}
