package app

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"marketplace_service/internal/chat/domain"
	"marketplace_service/internal/chat/hub"
	"marketplace_service/internal/chat/repository"
	errprocess "marketplace_service/pkg/err"
	"marketplace_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatRESTHandler 對話/訊息/上線狀態的 REST API
type ChatRESTHandler struct {
	messageUC *MessageUseCase
	presence  PresenceReader
	lastSeen  repository.PresenceRepository
}

// NewChatRESTHandler create ChatRESTHandler, lastSeen may be nil
func NewChatRESTHandler(messageUC *MessageUseCase, presence PresenceReader, lastSeen repository.PresenceRepository) *ChatRESTHandler {
	return &ChatRESTHandler{messageUC: messageUC, presence: presence, lastSeen: lastSeen}
}

// StartConversationRequest POST /api/conversations
type StartConversationRequest struct {
	Participant1ID string `json:"participant_1_id"`
	Participant2ID string `json:"participant_2_id"`
}

// SendMessageRequest POST /api/messages
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	MessageType    string `json:"message_type"`
}

// UpdateMessageRequest PUT /api/messages/:message_id
type UpdateMessageRequest struct {
	IsRead *bool `json:"is_read"`
}

// UserStatusResponse GET /api/system/user-status/:user_id
type UserStatusResponse struct {
	UserID   string  `json:"user_id"`
	Online   bool    `json:"is_online"`
	LastSeen *string `json:"last_seen"`
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrRejectedWrite),
		errors.Is(err, ErrInvalidPagination),
		errors.Is(err, errprocess.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrConversationNotFound),
		errors.Is(err, domain.ErrMessageNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, hub.ErrLockTimeout):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func sendError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		logger.Log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func pageParams(c *fiber.Ctx) (skip, limit int, err error) {
	skip, limit = 0, DefaultPageLimit
	if s := c.Query("skip"); s != "" {
		if skip, err = strconv.Atoi(s); err != nil {
			return 0, 0, errprocess.Set(ErrInvalidPagination, fmt.Sprintf("skip %q is not a number", s))
		}
	}
	if s := c.Query("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil {
			return 0, 0, errprocess.Set(ErrInvalidPagination, fmt.Sprintf("limit %q is not a number", s))
		}
	}
	return skip, limit, nil
}

func requireQuery(c *fiber.Ctx, name string) (string, error) {
	v := c.Query(name)
	if v == "" {
		return "", errprocess.Set(nil, name+" is required")
	}
	return v, nil
}

// StartConversation find or create conversation
// @Summary Start conversation
// @Tags Conversation
// @Accept json
// @Produce json
// @Param request body StartConversationRequest true "participants"
// @Success 200 {object} domain.Conversation
// @Failure 400 {object} map[string]string
// @Router /api/conversations [post]
func (h *ChatRESTHandler) StartConversation(c *fiber.Ctx) error {
	var req StartConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, errprocess.Set(nil, "invalid conversation body"))
	}
	conv, err := h.messageUC.StartConversation(c.UserContext(), req.Participant1ID, req.Participant2ID)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(conv)
}

// ListConversations active conversations of a user
// @Summary List conversations
// @Tags Conversation
// @Param user_id query string true "user id"
// @Param skip query int false "skip"
// @Param limit query int false "limit"
// @Success 200 {array} domain.ConversationSummary
// @Router /api/conversations [get]
func (h *ChatRESTHandler) ListConversations(c *fiber.Ctx) error {
	userID, err := requireQuery(c, "user_id")
	if err != nil {
		return sendError(c, err)
	}
	skip, limit, err := pageParams(c)
	if err != nil {
		return sendError(c, err)
	}
	list, err := h.messageUC.ListConversations(c.UserContext(), userID, skip, limit)
	if err != nil {
		return sendError(c, err)
	}
	if list == nil {
		list = []domain.ConversationSummary{}
	}
	return c.JSON(list)
}

// GetConversation one conversation
// @Summary Get conversation
// @Tags Conversation
// @Param conversation_id path string true "conversation id"
// @Success 200 {object} domain.Conversation
// @Failure 404 {object} map[string]string
// @Router /api/conversations/{conversation_id} [get]
func (h *ChatRESTHandler) GetConversation(c *fiber.Ctx) error {
	conv, err := h.messageUC.GetConversation(c.UserContext(), c.Params("conversation_id"))
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(conv)
}

// CloseConversation soft delete
// @Summary Close conversation
// @Tags Conversation
// @Param conversation_id path string true "conversation id"
// @Success 200 {object} map[string]string
// @Router /api/conversations/{conversation_id} [delete]
func (h *ChatRESTHandler) CloseConversation(c *fiber.Ctx) error {
	id := c.Params("conversation_id")
	if err := h.messageUC.CloseConversation(c.UserContext(), id); err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{"message": "conversation closed", "conversation_id": id})
}

// UnreadCount unread messages for a user
// @Summary Unread count
// @Tags Conversation
// @Param conversation_id path string true "conversation id"
// @Param user_id query string true "user id"
// @Success 200 {object} map[string]int
// @Router /api/conversations/{conversation_id}/unread [get]
func (h *ChatRESTHandler) UnreadCount(c *fiber.Ctx) error {
	userID, err := requireQuery(c, "user_id")
	if err != nil {
		return sendError(c, err)
	}
	id := c.Params("conversation_id")
	n, err := h.messageUC.UnreadCount(c.UserContext(), id, userID)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{"conversation_id": id, "user_id": userID, "unread_count": n})
}

// SendMessage append a message and notify the other side
// @Summary Send message
// @Tags Message
// @Accept json
// @Param request body SendMessageRequest true "message"
// @Success 200 {object} domain.Message
// @Failure 400 {object} map[string]string
// @Router /api/messages [post]
func (h *ChatRESTHandler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, errprocess.Set(nil, "invalid message body"))
	}
	msg, err := h.messageUC.SendMessage(c.UserContext(), req.ConversationID, req.SenderID, req.Content, req.MessageType)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(msg)
}

// ListMessages messages of a conversation ordered by sent_at
// @Summary List messages
// @Tags Message
// @Param conversation_id query string true "conversation id"
// @Param skip query int false "skip"
// @Param limit query int false "limit"
// @Success 200 {array} domain.Message
// @Router /api/messages [get]
func (h *ChatRESTHandler) ListMessages(c *fiber.Ctx) error {
	convID, err := requireQuery(c, "conversation_id")
	if err != nil {
		return sendError(c, err)
	}
	skip, limit, err := pageParams(c)
	if err != nil {
		return sendError(c, err)
	}
	msgs, err := h.messageUC.ListMessages(c.UserContext(), convID, skip, limit)
	if err != nil {
		return sendError(c, err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return c.JSON(msgs)
}

// GetMessage one message
// @Summary Get message
// @Tags Message
// @Param message_id path string true "message id"
// @Success 200 {object} domain.Message
// @Router /api/messages/{message_id} [get]
func (h *ChatRESTHandler) GetMessage(c *fiber.Ctx) error {
	msg, err := h.messageUC.GetMessage(c.UserContext(), c.Params("message_id"))
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(msg)
}

// UpdateMessage set is_read of one message
// @Summary Update message
// @Tags Message
// @Accept json
// @Param message_id path string true "message id"
// @Param request body UpdateMessageRequest true "read status"
// @Success 200 {object} domain.Message
// @Failure 404 {object} map[string]string
// @Router /api/messages/{message_id} [put]
func (h *ChatRESTHandler) UpdateMessage(c *fiber.Ctx) error {
	var req UpdateMessageRequest
	if err := c.BodyParser(&req); err != nil || req.IsRead == nil {
		return sendError(c, errprocess.Set(nil, "is_read is required"))
	}
	msg, err := h.messageUC.UpdateReadStatus(c.UserContext(), c.Params("message_id"), *req.IsRead)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(msg)
}

// DeleteMessage delete one message
// @Summary Delete message
// @Tags Message
// @Param message_id path string true "message id"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/messages/{message_id} [delete]
func (h *ChatRESTHandler) DeleteMessage(c *fiber.Ctx) error {
	if err := h.messageUC.DeleteMessage(c.UserContext(), c.Params("message_id")); err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{"message": "message deleted"})
}

// MarkRead mark the conversation read for a user
// @Summary Mark read
// @Tags Message
// @Param conversation_id path string true "conversation id"
// @Param user_id query string true "reader id"
// @Success 200 {object} map[string]int
// @Router /api/messages/conversation/{conversation_id}/mark-read [put]
func (h *ChatRESTHandler) MarkRead(c *fiber.Ctx) error {
	readerID, err := requireQuery(c, "user_id")
	if err != nil {
		return sendError(c, err)
	}
	id := c.Params("conversation_id")
	n, err := h.messageUC.MarkRead(c.UserContext(), id, readerID)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{"conversation_id": id, "marked_count": n})
}

// OnlineUsers users with at least one open connection
// @Summary Online users
// @Tags System
// @Success 200 {object} map[string]interface{}
// @Router /api/system/online-users [get]
func (h *ChatRESTHandler) OnlineUsers(c *fiber.Ctx) error {
	users, err := h.presence.OnlineUsers(c.UserContext())
	if err != nil {
		return sendError(c, err)
	}
	if users == nil {
		users = []string{}
	}
	return c.JSON(fiber.Map{"online_users": users, "count": len(users)})
}

// UserStatus presence and mirrored last_seen of a user
// @Summary User status
// @Tags System
// @Param user_id path string true "user id"
// @Success 200 {object} UserStatusResponse
// @Router /api/system/user-status/{user_id} [get]
func (h *ChatRESTHandler) UserStatus(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	online, err := h.presence.IsOnline(c.UserContext(), userID)
	if err != nil {
		return sendError(c, err)
	}

	resp := UserStatusResponse{UserID: userID, Online: online}
	if h.lastSeen != nil {
		rec, err := h.lastSeen.LastSeen(c.UserContext(), userID)
		if err != nil {
			// redis 只是鏡像, 失敗時仍回傳記憶體中的狀態
			logger.Log.Warn("read last_seen failed", zap.String("user_id", userID), zap.Error(err))
		} else if rec != nil {
			ts := domain.FormatTime(rec.LastSeen)
			resp.LastSeen = &ts
		}
	}
	return c.JSON(resp)
}

// ConnectCheck check chat service connect
// @Summary Check chat service status
// @Tags Shared
// @Success 200 {string} string "chat service start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat service start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Tags Shared
// @Param status query bool true "Debug status"
// @Success 200 {string} string "debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	// prase payload
	query, err := url.ParseQuery(string(c.Context().QueryArgs().QueryString()))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	statusStr := query.Get("status")
	logger.Log.Info("debug", zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}
