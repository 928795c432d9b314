package repository

import (
	"context"
	"errors"
	"time"

	"marketplace_service/internal/chat/domain"
	"marketplace_service/pkg/database"
)

// PresenceRepository redis mirror of presence transitions, keeps last_seen across restarts
type PresenceRepository interface {
	MarkOnline(ctx context.Context, userID string, at time.Time) error
	MarkOffline(ctx context.Context, userID string, at time.Time) error
	// LastSeen 沒有紀錄時回傳 nil, nil
	LastSeen(ctx context.Context, userID string) (*domain.PresenceRecord, error)
}

type presenceRepository struct {
	store database.RedisRepository[domain.PresenceRecord]
	ttl   time.Duration
}

// NewPresenceRepository create redis PresenceRepository
func NewPresenceRepository(store database.RedisRepository[domain.PresenceRecord], ttl time.Duration) PresenceRepository {
	return &presenceRepository{store: store, ttl: ttl}
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

func (r *presenceRepository) MarkOnline(ctx context.Context, userID string, at time.Time) error {
	return r.store.Set(ctx, presenceKey(userID), domain.PresenceRecord{
		UserID:   userID,
		Status:   domain.StatusOnline,
		LastSeen: at.UTC(),
	}, r.ttl)
}

func (r *presenceRepository) MarkOffline(ctx context.Context, userID string, at time.Time) error {
	return r.store.Set(ctx, presenceKey(userID), domain.PresenceRecord{
		UserID:   userID,
		Status:   domain.StatusOffline,
		LastSeen: at.UTC(),
	}, r.ttl)
}

func (r *presenceRepository) LastSeen(ctx context.Context, userID string) (*domain.PresenceRecord, error) {
	rec, err := r.store.Get(ctx, presenceKey(userID))
	if errors.Is(err, database.ErrRedisNil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
