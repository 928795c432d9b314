package domain

import (
	"encoding/json"
	"fmt"
)

// ControlType client -> server envelope type
type ControlType string

const (
	// ControlPing liveness check
	ControlPing ControlType = "ping"
	// ControlJoinConversation subscribe to a conversation's live events
	ControlJoinConversation ControlType = "join_conversation"
)

// ControlMessage closed set of inbound control messages: PingControl | JoinConversationControl
type ControlMessage interface {
	Control() ControlType
	sealed()
}

// PingControl {"type":"ping"}
type PingControl struct{}

// Control implement ControlMessage
func (PingControl) Control() ControlType { return ControlPing }
func (PingControl) sealed()              {}

// JoinConversationControl {"type":"join_conversation","conversation_id":"..."}
type JoinConversationControl struct {
	ConversationID string
}

// Control implement ControlMessage
func (JoinConversationControl) Control() ControlType { return ControlJoinConversation }
func (JoinConversationControl) sealed()              {}

type controlEnvelope struct {
	Type           ControlType `json:"type"`
	ConversationID *string     `json:"conversation_id"`
}

// DecodeControl 解析一個 frame, 不屬於 ping / join_conversation 的內容一律回傳錯誤
func DecodeControl(frame []byte) (ControlMessage, error) {
	var env controlEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Type {
	case ControlPing:
		return PingControl{}, nil
	case ControlJoinConversation:
		if env.ConversationID == nil || *env.ConversationID == "" {
			return nil, fmt.Errorf("%w: join_conversation without conversation_id", ErrMalformedFrame)
		}
		return JoinConversationControl{ConversationID: *env.ConversationID}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownControl, env.Type)
	}
}
