package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace_service/internal/chat/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository message side of the message store
type MessageRepository interface {
	// Append 寫入訊息並在同一個 transaction 中更新對話的 last_message / last_message_at
	Append(ctx context.Context, conversationID, senderID, content string, messageType domain.MessageType) (*domain.Message, error)
	// MarkRead 將他人送出的未讀訊息標為已讀, 回傳實際更新的筆數
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
	List(ctx context.Context, conversationID string, skip, limit int) ([]domain.Message, error)
	FindByID(ctx context.Context, messageID string) (*domain.Message, error)
	// SetRead 設定單一訊息的 is_read, read_at 只在 is_read = true 時有值
	SetRead(ctx context.Context, messageID string, isRead bool) (*domain.Message, error)
	// Delete 刪除單一訊息, 對話的 last_message 快取改為剩餘最新的一則
	Delete(ctx context.Context, messageID string) error
}

type messageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMessageRepository create gorm MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db, now: time.Now}
}

func (r *messageRepository) Append(ctx context.Context, conversationID, senderID, content string, messageType domain.MessageType) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, rejected(domain.ErrEmptyContent)
	}
	if _, err := domain.ParseMessageType(string(messageType)); err != nil || messageType == "" {
		return nil, rejected(fmt.Errorf("%w: %q", domain.ErrInvalidMessageType, messageType))
	}

	var msg *domain.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 鎖住對話列, 同一對話的寫入依序取得 sent_at
		var conv domain.Conversation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("conversation_id = ?", conversationID).
			Take(&conv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrConversationNotFound, conversationID)
		}
		if err != nil {
			return err
		}
		if !conv.IsActive {
			return fmt.Errorf("%w: %s", domain.ErrConversationInactive, conversationID)
		}
		if messageType != domain.MessageSystem && !conv.HasParticipant(senderID) {
			return fmt.Errorf("%w: %s", domain.ErrNotParticipant, senderID)
		}

		sentAt := monotonic(r.now(), conv.LastMessageAt)
		msg = &domain.Message{
			MessageID:      uuid.NewString(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			MessageType:    messageType,
			SentAt:         sentAt,
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		return tx.Model(&domain.Conversation{}).
			Where("conversation_id = ?", conversationID).
			Updates(map[string]interface{}{
				"last_message":    domain.Preview(content),
				"last_message_at": sentAt,
			}).Error
	})
	if err != nil {
		return nil, rejected(err)
	}
	return msg, nil
}

// monotonic postgres 只保存到微秒, 與前一則相同或更早時往後推 1µs
func monotonic(now time.Time, last *time.Time) time.Time {
	t := now.UTC().Truncate(time.Microsecond)
	if last != nil && !t.After(*last) {
		t = last.UTC().Add(time.Microsecond)
	}
	return t
}

func (r *messageRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, readerID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": r.now().UTC().Truncate(time.Microsecond),
		})
	return res.RowsAffected, res.Error
}

func (r *messageRepository) List(ctx context.Context, conversationID string, skip, limit int) ([]domain.Message, error) {
	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at ASC, message_id ASC").
		Offset(skip).
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *messageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).Take(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrMessageNotFound, messageID)
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) SetRead(ctx context.Context, messageID string, isRead bool) (*domain.Message, error) {
	var readAt *time.Time
	if isRead {
		t := r.now().UTC().Truncate(time.Microsecond)
		readAt = &t
	}

	res := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("message_id = ?", messageID).
		Updates(map[string]interface{}{
			"is_read": isRead,
			"read_at": readAt,
		})
	if res.Error != nil {
		return nil, rejected(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrMessageNotFound, messageID)
	}
	return r.FindByID(ctx, messageID)
}

func (r *messageRepository) Delete(ctx context.Context, messageID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg domain.Message
		err := tx.Where("message_id = ?", messageID).Take(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrMessageNotFound, messageID)
		}
		if err != nil {
			return err
		}

		// 與 Append 相同先鎖住對話列
		var conv domain.Conversation
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("conversation_id = ?", msg.ConversationID).
			Take(&conv).Error
		if err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&domain.Message{}).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"last_message": nil, "last_message_at": nil}
		var latest domain.Message
		err = tx.Where("conversation_id = ?", msg.ConversationID).
			Order("sent_at DESC, message_id DESC").
			Take(&latest).Error
		switch {
		case err == nil:
			updates["last_message"] = domain.Preview(latest.Content)
			updates["last_message_at"] = latest.SentAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return tx.Model(&domain.Conversation{}).
			Where("conversation_id = ?", msg.ConversationID).
			Updates(updates).Error
	})
}
