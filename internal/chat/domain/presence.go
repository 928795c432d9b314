package domain

import "time"

// PresenceStatus mirrored presence status
type PresenceStatus string

const (
	// StatusOnline user has at least one open connection
	StatusOnline PresenceStatus = "online"
	// StatusOffline user has no open connection
	StatusOffline PresenceStatus = "offline"
)

// PresenceRecord redis 中 presence:<user_id> 的內容
type PresenceRecord struct {
	UserID   string         `json:"user_id"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"last_seen"`
}
