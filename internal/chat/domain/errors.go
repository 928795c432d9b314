package domain

import "errors"

var (
	// ErrRejectedWrite store refused the write, nothing was persisted
	ErrRejectedWrite = errors.New("rejected write")
	// ErrConversationNotFound no conversation with the given id
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrConversationInactive conversation was soft deleted
	ErrConversationInactive = errors.New("conversation is inactive")
	// ErrNotParticipant sender is not one side of the conversation
	ErrNotParticipant = errors.New("sender is not a participant")
	// ErrSelfConversation both participants are the same user
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	// ErrInvalidMessageType message_type outside text/image/file/system
	ErrInvalidMessageType = errors.New("invalid message type")
	// ErrEmptyContent message content is blank
	ErrEmptyContent = errors.New("message content is empty")
	// ErrMessageNotFound no message with the given id
	ErrMessageNotFound = errors.New("message not found")

	// ErrMalformedFrame inbound frame is not a control envelope
	ErrMalformedFrame = errors.New("malformed control frame")
	// ErrUnknownControl envelope type is not ping or join_conversation
	ErrUnknownControl = errors.New("unknown control type")
)
