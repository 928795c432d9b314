package domain

import (
	"encoding/json"
	"time"
)

// EventType server -> client event name
type EventType string

const (
	// EventPong reply to a ping control frame
	EventPong EventType = "pong"
	// EventUserOnline user opened a connection
	EventUserOnline EventType = "user_online"
	// EventUserOffline user closed the last connection
	EventUserOffline EventType = "user_offline"
	// EventNewMessage message appended to a conversation
	EventNewMessage EventType = "new_message"
	// EventMessageRead reader marked the conversation read
	EventMessageRead EventType = "message_read"
	// EventOrderUpdated order service changed an order
	EventOrderUpdated EventType = "order_updated"
	// EventProductUpdated product service changed a product
	EventProductUpdated EventType = "product_updated"
	// EventNotification free form notification
	EventNotification EventType = "notification"
)

// TimeLayout ISO-8601 with microseconds
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTime 事件中的時間一律使用 UTC
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Event envelope {"type": ..., ...payload}
type Event interface {
	EventType() EventType
}

// PongEvent {"type":"pong"}
type PongEvent struct {
	Type EventType `json:"type"`
}

// EventType implement Event
func (e PongEvent) EventType() EventType { return e.Type }

// NewPongEvent build pong reply
func NewPongEvent() PongEvent {
	return PongEvent{Type: EventPong}
}

// PresenceEvent user_online / user_offline
type PresenceEvent struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	Timestamp string    `json:"timestamp"`
}

// EventType implement Event
func (e PresenceEvent) EventType() EventType { return e.Type }

// NewPresenceEvent build user_online when online, otherwise user_offline
func NewPresenceEvent(online bool, userID string, at time.Time) PresenceEvent {
	t := EventUserOffline
	if online {
		t = EventUserOnline
	}
	return PresenceEvent{Type: t, UserID: userID, Timestamp: FormatTime(at)}
}

// NewMessageEvent new_message, timestamp 為訊息的 sent_at
type NewMessageEvent struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	Message        Message   `json:"message"`
	Timestamp      string    `json:"timestamp"`
}

// EventType implement Event
func (e NewMessageEvent) EventType() EventType { return e.Type }

// NewNewMessageEvent build new_message from a stored message
func NewNewMessageEvent(m Message) NewMessageEvent {
	return NewMessageEvent{
		Type:           EventNewMessage,
		ConversationID: m.ConversationID,
		Message:        m,
		Timestamp:      FormatTime(m.SentAt),
	}
}

// MessageReadEvent read receipt
type MessageReadEvent struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	ReaderID       string    `json:"reader_id"`
	Count          int64     `json:"count"`
	Timestamp      string    `json:"timestamp"`
}

// EventType implement Event
func (e MessageReadEvent) EventType() EventType { return e.Type }

// NewMessageReadEvent build message_read
func NewMessageReadEvent(conversationID, readerID string, count int64, at time.Time) MessageReadEvent {
	return MessageReadEvent{
		Type:           EventMessageRead,
		ConversationID: conversationID,
		ReaderID:       readerID,
		Count:          count,
		Timestamp:      FormatTime(at),
	}
}

// OrderUpdatedEvent order_updated, order 內容由訂單服務決定
type OrderUpdatedEvent struct {
	Type      EventType       `json:"type"`
	Order     json.RawMessage `json:"order"`
	Timestamp string          `json:"timestamp"`
}

// EventType implement Event
func (e OrderUpdatedEvent) EventType() EventType { return e.Type }

// ProductUpdatedEvent product_updated, product 內容由商品服務決定
type ProductUpdatedEvent struct {
	Type      EventType       `json:"type"`
	Product   json.RawMessage `json:"product"`
	Timestamp string          `json:"timestamp"`
}

// EventType implement Event
func (e ProductUpdatedEvent) EventType() EventType { return e.Type }

// NotificationEvent notification
type NotificationEvent struct {
	Type      EventType       `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// EventType implement Event
func (e NotificationEvent) EventType() EventType { return e.Type }

// ProducerEvent kafka 上由訂單/商品服務發佈的事件
//
//	order_updated:   user_ids 為收件者
//	product_updated: user_ids 為關注者, 空則廣播
//	notification:    user_id 為收件者
type ProducerEvent struct {
	Type      EventType       `json:"type"`
	UserIDs   []string        `json:"user_ids,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Order     json.RawMessage `json:"order,omitempty"`
	Product   json.RawMessage `json:"product,omitempty"`
	Title     string          `json:"title,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}
