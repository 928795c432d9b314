package app

import (
	"context"

	"marketplace_service/internal/chat/domain"
)

// Notifier fan-out side of the connection manager, producers never touch sockets directly
type Notifier interface {
	Unicast(ctx context.Context, ev domain.Event, userID string)
	UnicastMany(ctx context.Context, ev domain.Event, userIDs ...string)
	Multicast(ctx context.Context, ev domain.Event, conversationID, exclude string)
	BroadcastAll(ctx context.Context, ev domain.Event)
	Join(ctx context.Context, conversationID, userID string) error
	Leave(ctx context.Context, conversationID, userID string) error
}

// PresenceReader presence queries of the connection manager
type PresenceReader interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
	OnlineUsers(ctx context.Context) ([]string, error)
}
