package domain

import (
	"fmt"
	"time"
)

// Conversation 兩位參與者之間的對話
// 同一組 (不分順序) 參與者最多只有一筆 is_active 的對話, 由 pair_key 的 partial unique index 保證
type Conversation struct {
	ConversationID string     `gorm:"column:conversation_id;primaryKey;type:varchar(64)" json:"conversation_id"`
	ParticipantA   string     `gorm:"column:participant_a;type:varchar(128);not null;index" json:"participant_1_id"`
	ParticipantB   string     `gorm:"column:participant_b;type:varchar(128);not null;index" json:"participant_2_id"`
	PairKey        string     `gorm:"column:pair_key;type:varchar(270);not null" json:"-"`
	LastMessage    *string    `gorm:"column:last_message;type:text" json:"last_message"`
	LastMessageAt  *time.Time `gorm:"column:last_message_at" json:"last_message_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	IsActive       bool       `gorm:"column:is_active;not null;default:true" json:"is_active"`
}

// TableName gorm table name
func (Conversation) TableName() string {
	return "conversations"
}

// HasParticipant check user is one side of the conversation
func (c *Conversation) HasParticipant(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Participants return both sides
func (c *Conversation) Participants() []string {
	return []string{c.ParticipantA, c.ParticipantB}
}

// ConversationSummary conversation with the unread count of the requesting user
type ConversationSummary struct {
	Conversation `gorm:"embedded"`
	UnreadCount  int64 `gorm:"column:unread_count" json:"unread_count"`
}

// PairKey 不分順序的參與者鍵, 長度前綴避免分隔字元出現在 id 中造成碰撞
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%s:%s", len(a), a, b)
}

// PreviewLimit last_message 最多保留的字元數
const PreviewLimit = 100

// Preview 超過 100 字元時截斷並加上 "..."
func Preview(content string) string {
	r := []rune(content)
	if len(r) <= PreviewLimit {
		return content
	}
	return string(r[:PreviewLimit]) + "..."
}
