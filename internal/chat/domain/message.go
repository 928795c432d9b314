package domain

import (
	"fmt"
	"time"
)

// MessageType message content kind
type MessageType string

const (
	// MessageText plain text
	MessageText MessageType = "text"
	// MessageImage image url
	MessageImage MessageType = "image"
	// MessageFile file url
	MessageFile MessageType = "file"
	// MessageSystem generated by the platform, sender need not be a participant
	MessageSystem MessageType = "system"
)

// ParseMessageType 空字串視為 text
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(s); t {
	case "":
		return MessageText, nil
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMessageType, s)
	}
}

// Message 對話中的一則訊息
// read_at 只在 is_read = true 時有值
type Message struct {
	MessageID      string        `gorm:"column:message_id;primaryKey;type:varchar(64)" json:"message_id"`
	ConversationID string        `gorm:"column:conversation_id;type:varchar(64);not null;index:idx_messages_conversation_sent,priority:1" json:"conversation_id"`
	SenderID       string        `gorm:"column:sender_id;type:varchar(128);not null" json:"sender_id"`
	Content        string        `gorm:"column:content;type:text;not null" json:"content"`
	MessageType    MessageType   `gorm:"column:message_type;type:varchar(16);not null;default:text" json:"message_type"`
	IsRead         bool          `gorm:"column:is_read;not null;default:false" json:"is_read"`
	SentAt         time.Time     `gorm:"column:sent_at;not null;index:idx_messages_conversation_sent,priority:2" json:"sent_at"`
	ReadAt         *time.Time    `gorm:"column:read_at" json:"read_at"`
	Conversation   *Conversation `gorm:"foreignKey:ConversationID;references:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName gorm table name
func (Message) TableName() string {
	return "messages"
}
