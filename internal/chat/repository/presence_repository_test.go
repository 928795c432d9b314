package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace_service/internal/chat/domain"
	"marketplace_service/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceRepository_MarkOnlineOffline(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := new(MockPresenceStore)
	repo := NewPresenceRepository(store, time.Hour)

	store.On("Set", ctx, "presence:alice", domain.PresenceRecord{UserID: "alice", Status: domain.StatusOnline, LastSeen: at}, time.Hour).Return(nil)
	store.On("Set", ctx, "presence:alice", domain.PresenceRecord{UserID: "alice", Status: domain.StatusOffline, LastSeen: at}, time.Hour).Return(nil)

	require.NoError(t, repo.MarkOnline(ctx, "alice", at))
	require.NoError(t, repo.MarkOffline(ctx, "alice", at))
	store.AssertExpectations(t)
}

func TestPresenceRepository_LastSeen(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := new(MockPresenceStore)
	repo := NewPresenceRepository(store, time.Hour)

	store.On("Get", ctx, "presence:alice").Return(domain.PresenceRecord{UserID: "alice", Status: domain.StatusOffline, LastSeen: at}, nil)
	store.On("Get", ctx, "presence:ghost").Return(domain.PresenceRecord{}, database.ErrRedisNil)
	store.On("Get", ctx, "presence:broken").Return(domain.PresenceRecord{}, errors.New("connection refused"))

	rec, err := repo.LastSeen(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StatusOffline, rec.Status)
	assert.Equal(t, at, rec.LastSeen)

	rec, err = repo.LastSeen(ctx, "ghost")
	assert.NoError(t, err)
	assert.Nil(t, rec)

	_, err = repo.LastSeen(ctx, "broken")
	assert.Error(t, err)
}

func TestMonotonic(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 123456789, time.UTC)

	assert.Equal(t, now.Truncate(time.Microsecond), monotonic(now, nil))

	earlier := now.Add(-time.Second)
	assert.Equal(t, now.Truncate(time.Microsecond), monotonic(now, &earlier))

	same := now.Truncate(time.Microsecond)
	assert.Equal(t, same.Add(time.Microsecond), monotonic(now, &same))

	// 時鐘倒退時仍然遞增
	later := now.Add(time.Second).Truncate(time.Microsecond)
	assert.Equal(t, later.Add(time.Microsecond), monotonic(now, &later))
}

func TestRejected(t *testing.T) {
	err := rejected(domain.ErrNotParticipant)
	assert.ErrorIs(t, err, domain.ErrRejectedWrite)
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	plain := errors.New("connection reset")
	assert.Equal(t, plain, rejected(plain))
	assert.Nil(t, rejected(nil))

	twice := rejected(err)
	assert.Equal(t, err, twice)
}
