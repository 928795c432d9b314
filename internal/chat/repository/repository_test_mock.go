package repository

import (
	"context"
	"time"

	"marketplace_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockPresenceStore mock database.RedisRepository[domain.PresenceRecord]
type MockPresenceStore struct {
	mock.Mock
}

func (m *MockPresenceStore) Set(ctx context.Context, key string, value domain.PresenceRecord, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockPresenceStore) Get(ctx context.Context, key string) (domain.PresenceRecord, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(domain.PresenceRecord), args.Error(1)
}

func (m *MockPresenceStore) Del(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockPresenceStore) GetTTL(ctx context.Context, key string) (int, error) {
	args := m.Called(ctx, key)
	return args.Int(0), args.Error(1)
}

func (m *MockPresenceStore) ExtendTTL(ctx context.Context, key string, ttl time.Duration) error {
	args := m.Called(ctx, key, ttl)
	return args.Error(0)
}
