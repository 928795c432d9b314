package repository

import (
	"context"
	"errors"
	"fmt"

	"marketplace_service/internal/chat/domain"

	"gorm.io/gorm"
)

// activePairIndex 同一組參與者只允許一筆 is_active 的對話
const activePairIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_conversations_active_pair ON conversations (pair_key) WHERE is_active`

// AutoMigrate create conversations/messages tables and the partial unique index
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&domain.Conversation{}, &domain.Message{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.WithContext(ctx).Exec(activePairIndex).Error; err != nil {
		return fmt.Errorf("create active pair index: %w", err)
	}
	return nil
}

// rejected 將約束違反與領域錯誤包成 ErrRejectedWrite, 其他錯誤 (連線等) 原樣回傳
func rejected(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrRejectedWrite):
		return err
	case errors.Is(err, domain.ErrConversationNotFound),
		errors.Is(err, domain.ErrConversationInactive),
		errors.Is(err, domain.ErrNotParticipant),
		errors.Is(err, domain.ErrSelfConversation),
		errors.Is(err, domain.ErrInvalidMessageType),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, gorm.ErrForeignKeyViolated),
		errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, gorm.ErrCheckConstraintViolated):
		return fmt.Errorf("%w: %w", domain.ErrRejectedWrite, err)
	default:
		return err
	}
}
