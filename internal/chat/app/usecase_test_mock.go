package app

import (
	"context"
	"time"

	"marketplace_service/internal/chat/domain"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
)

// MockConversationRepository Mock ConversationRepository
type MockConversationRepository struct {
	mock.Mock
}

// FindOrCreate mock find or create conversation
func (m *MockConversationRepository) FindOrCreate(ctx context.Context, a, b string) (*domain.Conversation, error) {
	args := m.Called(ctx, a, b)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByID mock find conversation by id
func (m *MockConversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListByUser mock list conversations of user
func (m *MockConversationRepository) ListByUser(ctx context.Context, userID string, skip, limit int) ([]domain.ConversationSummary, error) {
	args := m.Called(ctx, userID, skip, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ConversationSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

// Deactivate mock soft delete
func (m *MockConversationRepository) Deactivate(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

// UnreadCount mock unread count
func (m *MockConversationRepository) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Append mock append message
func (m *MockMessageRepository) Append(ctx context.Context, conversationID, senderID, content string, messageType domain.MessageType) (*domain.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content, messageType)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkRead mock mark read
func (m *MockMessageRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	args := m.Called(ctx, conversationID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

// List mock list messages
func (m *MockMessageRepository) List(ctx context.Context, conversationID string, skip, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID, skip, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByID mock find message by id
func (m *MockMessageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// SetRead mock set read status of one message
func (m *MockMessageRepository) SetRead(ctx context.Context, messageID string, isRead bool) (*domain.Message, error) {
	args := m.Called(ctx, messageID, isRead)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// Delete mock delete message
func (m *MockMessageRepository) Delete(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

// MockNotifier Mock Notifier
type MockNotifier struct {
	mock.Mock
}

// Unicast mock unicast
func (m *MockNotifier) Unicast(ctx context.Context, ev domain.Event, userID string) {
	m.Called(ctx, ev, userID)
}

// UnicastMany mock unicast to many users
func (m *MockNotifier) UnicastMany(ctx context.Context, ev domain.Event, userIDs ...string) {
	m.Called(ctx, ev, userIDs)
}

// Multicast mock multicast
func (m *MockNotifier) Multicast(ctx context.Context, ev domain.Event, conversationID, exclude string) {
	m.Called(ctx, ev, conversationID, exclude)
}

// BroadcastAll mock broadcast
func (m *MockNotifier) BroadcastAll(ctx context.Context, ev domain.Event) {
	m.Called(ctx, ev)
}

// Join mock join conversation
func (m *MockNotifier) Join(ctx context.Context, conversationID, userID string) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

// Leave mock leave conversation
func (m *MockNotifier) Leave(ctx context.Context, conversationID, userID string) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

// MockPresenceReader Mock PresenceReader
type MockPresenceReader struct {
	mock.Mock
}

// IsOnline mock is online
func (m *MockPresenceReader) IsOnline(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// OnlineUsers mock online users
func (m *MockPresenceReader) OnlineUsers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPresenceRepository Mock PresenceRepository
type MockPresenceRepository struct {
	mock.Mock
}

// MarkOnline mock mark online
func (m *MockPresenceRepository) MarkOnline(ctx context.Context, userID string, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

// MarkOffline mock mark offline
func (m *MockPresenceRepository) MarkOffline(ctx context.Context, userID string, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

// LastSeen mock last seen
func (m *MockPresenceRepository) LastSeen(ctx context.Context, userID string) (*domain.PresenceRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.PresenceRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockEventReader Mock EventReader
type MockEventReader struct {
	mock.Mock
}

// FetchMessage mock fetch kafka message
func (m *MockEventReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	args := m.Called(ctx)
	return args.Get(0).(kafka.Message), args.Error(1)
}

// CommitMessages mock commit kafka messages
func (m *MockEventReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

// Close mock close reader
func (m *MockEventReader) Close() error {
	args := m.Called()
	return args.Error(0)
}
