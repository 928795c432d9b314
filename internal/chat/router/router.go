package router

import (
	"context"

	"marketplace_service/internal/chat/app"
	"marketplace_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 註冊 websocket 與 REST 路由
// authEnabled 時 /ws/:user_id 需帶 token, 且 token 的 user 必須等於 path 上的 user_id
func RegisterRoutes(ctx context.Context, r *fiber.App, chatWebsocket *app.ChatWebsocketHandler, rest *app.ChatRESTHandler, authEnabled bool) {
	r.Get("/", app.ConnectCheck)
	r.Post("/debug", app.DebugLogFlag)

	ws := []fiber.Handler{upgradeOnly}
	if authEnabled {
		ws = append(ws, middlewares.JWTMiddleware(), middlewares.MatchParamMember("user_id"))
	}
	ws = append(ws, websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(ctx, c)
	}))
	r.Get("/ws/:user_id", ws...)

	api := r.Group("/api")

	conversations := api.Group("/conversations")
	conversations.Post("/", rest.StartConversation)
	conversations.Get("/", rest.ListConversations)
	conversations.Get("/:conversation_id", rest.GetConversation)
	conversations.Delete("/:conversation_id", rest.CloseConversation)
	conversations.Get("/:conversation_id/unread", rest.UnreadCount)

	messages := api.Group("/messages")
	messages.Post("/", rest.SendMessage)
	messages.Get("/", rest.ListMessages)
	messages.Get("/:message_id", rest.GetMessage)
	messages.Put("/:message_id", rest.UpdateMessage)
	messages.Delete("/:message_id", rest.DeleteMessage)
	messages.Put("/conversation/:conversation_id/mark-read", rest.MarkRead)

	system := api.Group("/system")
	system.Get("/online-users", rest.OnlineUsers)
	system.Get("/user-status/:user_id", rest.UserStatus)
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
