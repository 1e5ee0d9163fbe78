package chat

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Conversation is one chat session for a user.
type Conversation struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	SessionID string         `json:"session_id" gorm:"uniqueIndex"`
	UserID    string         `json:"user_id" gorm:"index"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
	Messages  []Message      `json:"-" gorm:"foreignKey:ConversationID"`
}

type Message struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	ConversationID uint           `json:"conversation_id" gorm:"index"`
	Sender         string         `json:"sender"` // "user" or "bot"
	Content        string         `json:"content"`
	Personality    string         `json:"personality,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}

// History persists per-session conversation turns and serves the
// sliding window the pipeline composes prompts from.
type History struct {
	db *gorm.DB
}

func NewHistory(db *gorm.DB) *History {
	return &History{db: db}
}

// Append records one turn. The conversation row is created on first use.
func (h *History) Append(ctx context.Context, userID, sessionID, sender, content, personality string) error {
	var conv Conversation
	err := h.db.WithContext(ctx).
		Where(Conversation{SessionID: sessionID}).
		Attrs(Conversation{UserID: userID}).
		FirstOrCreate(&conv).Error
	if err != nil {
		return err
	}
	msg := Message{
		ConversationID: conv.ID,
		Sender:         sender,
		Content:        content,
		Personality:    personality,
	}
	return h.db.WithContext(ctx).Create(&msg).Error
}

// Recent returns the session's messages in chronological order, capped
// at limit most-recent.
func (h *History) Recent(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	var conv Conversation
	err := h.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&conv).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var messages []Message
	err = h.db.WithContext(ctx).
		Where("conversation_id = ?", conv.ID).
		Order("id desc").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	// reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// BuildSlidingWindow trims messages to fit a character budget derived
// from the generator's context size, keeping the most recent turns.
func BuildSlidingWindow(messages []Message, contextSize int) []Message {
	maxChars := int(float64(contextSize)*0.85) * 4 // use 85% of context, 4 chars/token
	var window []Message
	totalChars := 0

	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		msgLen := len(m.Content)
		if totalChars+msgLen > maxChars {
			break
		}
		window = append([]Message{m}, window...)
		totalChars += msgLen
	}
	return window
}
