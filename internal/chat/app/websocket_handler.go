package app

import (
	"context"
	"time"

	"marketplace_service/internal/chat/hub"
	"marketplace_service/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// Sessions 連線管理: 註冊 handle 並執行接收迴圈
type Sessions interface {
	Serve(ctx context.Context, c *hub.Conn) error
}

// Keepalive server side ping settings
type Keepalive struct {
	PingPeriod time.Duration
	PongWait   time.Duration
}

// ChatWebsocketHandler websocket 進入點, 一條連線對應一個 hub.Conn
type ChatWebsocketHandler struct {
	sessions  Sessions
	keepalive Keepalive
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(sessions Sessions, keepalive Keepalive) *ChatWebsocketHandler {
	if keepalive.PingPeriod <= 0 {
		keepalive.PingPeriod = 30 * time.Second
	}
	if keepalive.PongWait <= keepalive.PingPeriod {
		keepalive.PongWait = 2 * keepalive.PingPeriod
	}
	return &ChatWebsocketHandler{sessions: sessions, keepalive: keepalive}
}

// HandleConnection 是 WebSocket 連線的進入點, path 參數 user_id 為連線者
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	userID := conn.Params("user_id")
	if userID == "" {
		logger.Log.Warn("websocket without user_id", zap.String("remote", conn.RemoteAddr().String()))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user_id required"))
		_ = conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 對方在 pong_wait 內沒有任何回應, ReadMessage 會失敗並斷線
	_ = conn.SetReadDeadline(time.Now().Add(h.keepalive.PongWait))
	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.keepalive.PongWait))
	})

	// 返回後 fiber 會回收 conn, 必須先等 ping goroutine 結束
	stopPing := h.startPing(ctx, conn, userID)
	defer stopPing()

	c := hub.NewConn(userID, conn)
	logger.Log.Info("websocket connected", zap.String("user_id", userID), zap.String("conn_id", c.ID()))
	if err := h.sessions.Serve(ctx, c); err != nil {
		logger.Log.Error("websocket serve failed", zap.String("user_id", userID), zap.Error(err))
		_ = conn.Close()
	}
}

// ControlWriter the part of *websocket.Conn the ping loop needs
type ControlWriter interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// startPing run pingLoop in background, the returned stop blocks until the loop exited
func (h *ChatWebsocketHandler) startPing(ctx context.Context, conn ControlWriter, userID string) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.pingLoop(ctx, conn, h.keepalive.PingPeriod, userID)
	}()
	return func() {
		cancel()
		<-done
	}
}

// pingLoop 定期發送 Ping 直到 ctx 結束, WriteControl 與一般寫入可並行
func (h *ChatWebsocketHandler) pingLoop(ctx context.Context, conn ControlWriter, period time.Duration, userID string) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(period / 2)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Log.Debug("ping failed", zap.String("user_id", userID), zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
