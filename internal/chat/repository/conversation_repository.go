package repository

import (
	"context"
	"errors"
	"fmt"

	"marketplace_service/internal/chat/domain"
	"marketplace_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ConversationRepository conversation side of the message store
type ConversationRepository interface {
	// FindOrCreate 兩種參與者順序都視為同一組, 併發建立時輸家回傳贏家的資料
	FindOrCreate(ctx context.Context, a, b string) (*domain.Conversation, error)
	FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error)
	ListByUser(ctx context.Context, userID string, skip, limit int) ([]domain.ConversationSummary, error)
	Deactivate(ctx context.Context, conversationID string) error
	UnreadCount(ctx context.Context, conversationID, userID string) (int64, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository create gorm ConversationRepository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) FindOrCreate(ctx context.Context, a, b string) (*domain.Conversation, error) {
	if a == "" || b == "" {
		return nil, rejected(fmt.Errorf("%w: participant id is empty", domain.ErrNotParticipant))
	}
	if a == b {
		return nil, rejected(domain.ErrSelfConversation)
	}

	key := domain.PairKey(a, b)
	conv, err := r.findActiveByPair(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv = &domain.Conversation{
		ConversationID: uuid.NewString(),
		ParticipantA:   a,
		ParticipantB:   b,
		PairKey:        key,
		IsActive:       true,
	}
	err = r.db.WithContext(ctx).Create(conv).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// 併發建立, 回傳先寫入的那一筆
		logger.Log.Debug("conversation create race, re-query", zap.String("pair_key", key))
		return r.findActiveByPair(ctx, key)
	}
	if err != nil {
		return nil, rejected(err)
	}
	return conv, nil
}

func (r *conversationRepository) findActiveByPair(ctx context.Context, key string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).
		Where("pair_key = ? AND is_active = ?", key, true).
		Take(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Take(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConversationNotFound, conversationID)
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListByUser 使用者的有效對話, 最新訊息在前, 附帶該使用者的未讀數
func (r *conversationRepository) ListByUser(ctx context.Context, userID string, skip, limit int) ([]domain.ConversationSummary, error) {
	var out []domain.ConversationSummary
	unread := r.db.Model(&domain.Message{}).
		Select("COUNT(*)").
		Where("messages.conversation_id = conversations.conversation_id AND messages.sender_id <> ? AND messages.is_read = ?", userID, false)

	err := r.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Select("conversations.*, (?) AS unread_count", unread).
		Where("(participant_a = ? OR participant_b = ?) AND is_active = ?", userID, userID, true).
		Order("last_message_at DESC NULLS LAST, created_at DESC").
		Offset(skip).
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Deactivate soft delete, 之後同一組參與者可以建立新的對話
func (r *conversationRepository) Deactivate(ctx context.Context, conversationID string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("conversation_id = ?", conversationID).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrConversationNotFound, conversationID)
	}
	return nil
}

// UnreadCount 他人送出且未讀的訊息數, 已停用的對話一律為 0
func (r *conversationRepository) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Joins("JOIN conversations ON conversations.conversation_id = messages.conversation_id AND conversations.is_active = ?", true).
		Where("messages.conversation_id = ? AND messages.sender_id <> ? AND messages.is_read = ?", conversationID, userID, false).
		Count(&n).Error
	return n, err
}
