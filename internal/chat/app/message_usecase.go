package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace_service/internal/chat/domain"
	"marketplace_service/internal/chat/repository"
	"marketplace_service/pkg/logger"

	"go.uber.org/zap"
)

const (
	// DefaultPageLimit 未指定 limit 時的筆數
	DefaultPageLimit = 100
	// MaxPageLimit limit 上限
	MaxPageLimit = 1000
)

// ErrInvalidPagination skip < 0 or limit outside 1..1000
var ErrInvalidPagination = errors.New("invalid pagination")

// MessageUseCase 對話與訊息: 先寫入 store, 成功後才通知
type MessageUseCase struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	notifier Notifier
	now      func() time.Time
}

// NewMessageUseCase init message use case
func NewMessageUseCase(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	notifier Notifier,
) *MessageUseCase {
	return &MessageUseCase{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		notifier: notifier,
		now:      time.Now,
	}
}

func checkPage(skip, limit int) error {
	if skip < 0 || limit < 1 || limit > MaxPageLimit {
		return fmt.Errorf("%w: skip=%d limit=%d", ErrInvalidPagination, skip, limit)
	}
	return nil
}

// StartConversation find or create the conversation of the pair
func (uc *MessageUseCase) StartConversation(ctx context.Context, a, b string) (*domain.Conversation, error) {
	return uc.convRepo.FindOrCreate(ctx, a, b)
}

// GetConversation get conversation by id
func (uc *MessageUseCase) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	return uc.convRepo.FindByID(ctx, conversationID)
}

// ListConversations active conversations of user with unread counts
func (uc *MessageUseCase) ListConversations(ctx context.Context, userID string, skip, limit int) ([]domain.ConversationSummary, error) {
	if err := checkPage(skip, limit); err != nil {
		return nil, err
	}
	return uc.convRepo.ListByUser(ctx, userID, skip, limit)
}

// CloseConversation soft delete and drop the conversation's interest entry
func (uc *MessageUseCase) CloseConversation(ctx context.Context, conversationID string) error {
	if err := uc.convRepo.Deactivate(ctx, conversationID); err != nil {
		return err
	}
	if err := uc.notifier.Leave(ctx, conversationID, ""); err != nil {
		logger.Log.Warn("drop interest entry failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return nil
}

// SendMessage append then multicast new_message to the conversation's watchers except the sender
func (uc *MessageUseCase) SendMessage(ctx context.Context, conversationID, senderID, content, messageType string) (*domain.Message, error) {
	mt, err := domain.ParseMessageType(messageType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRejectedWrite, err)
	}

	msg, err := uc.msgRepo.Append(ctx, conversationID, senderID, content, mt)
	if err != nil {
		logger.Log.Error("append message failed",
			zap.String("conversation_id", conversationID),
			zap.String("sender_id", senderID),
			zap.Error(err),
		)
		return nil, err
	}

	uc.notifier.Multicast(ctx, domain.NewNewMessageEvent(*msg), conversationID, senderID)
	return msg, nil
}

// MarkRead mark the reader's incoming messages read; message_read is multicast only when something changed
func (uc *MessageUseCase) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	if _, err := uc.convRepo.FindByID(ctx, conversationID); err != nil {
		return 0, err
	}

	n, err := uc.msgRepo.MarkRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		uc.notifier.Multicast(ctx, domain.NewMessageReadEvent(conversationID, readerID, n, uc.now()), conversationID, readerID)
	}
	return n, nil
}

// UnreadCount unread messages of user in the conversation
func (uc *MessageUseCase) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	return uc.convRepo.UnreadCount(ctx, conversationID, userID)
}

// ListMessages messages ordered by sent_at
func (uc *MessageUseCase) ListMessages(ctx context.Context, conversationID string, skip, limit int) ([]domain.Message, error) {
	if err := checkPage(skip, limit); err != nil {
		return nil, err
	}
	return uc.msgRepo.List(ctx, conversationID, skip, limit)
}

// GetMessage get message by id
func (uc *MessageUseCase) GetMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	return uc.msgRepo.FindByID(ctx, messageID)
}

// UpdateReadStatus set is_read of one message
func (uc *MessageUseCase) UpdateReadStatus(ctx context.Context, messageID string, isRead bool) (*domain.Message, error) {
	return uc.msgRepo.SetRead(ctx, messageID, isRead)
}

// DeleteMessage delete one message
func (uc *MessageUseCase) DeleteMessage(ctx context.Context, messageID string) error {
	if err := uc.msgRepo.Delete(ctx, messageID); err != nil {
		return err
	}
	logger.Log.Info("message deleted", zap.String("message_id", messageID))
	return nil
}
