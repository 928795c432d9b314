package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"marketplace_service/internal/chat/domain"
	"marketplace_service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PresenceObserver 接收上線/離線轉換, 例如寫入 redis 的 last_seen
type PresenceObserver interface {
	MarkOnline(ctx context.Context, userID string, at time.Time) error
	MarkOffline(ctx context.Context, userID string, at time.Time) error
}

// Options connection manager limits
type Options struct {
	SendTimeout       time.Duration
	LockTimeout       time.Duration
	FanoutConcurrency int
}

func (o Options) withDefaults() Options {
	if o.SendTimeout <= 0 {
		o.SendTimeout = 5 * time.Second
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 2 * time.Second
	}
	if o.FanoutConcurrency <= 0 {
		o.FanoutConcurrency = 32
	}
	return o
}

// Manager owns the presence registry and interest index and fans events out to handles
// socket I/O never happens while a registry lock is held
type Manager struct {
	presence *Registry
	interest *InterestIndex
	opts     Options

	announcer *announcer
	mirror    *mirror

	now func() time.Time
}

// NewManager create connection manager, observer may be nil
// observer 不為 nil 時會啟動 mirror worker, 結束時須呼叫 Close
func NewManager(opts Options, observer PresenceObserver) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		presence:  NewRegistry(opts.LockTimeout),
		interest:  NewInterestIndex(opts.LockTimeout),
		opts:      opts,
		announcer: newAnnouncer(opts.LockTimeout),
		mirror:    newMirror(observer, opts.SendTimeout),
		now:       time.Now,
	}
}

// Close stop the presence mirror worker after flushing queued changes
func (m *Manager) Close() {
	m.mirror.close()
}

// Connect CONNECTING -> OPEN, register the handle and broadcast user_online
func (m *Manager) Connect(ctx context.Context, c *Conn) error {
	if !c.open() {
		return ErrConnClosed
	}

	if err := m.presence.Register(ctx, c.UserID(), c); err != nil {
		logger.Log.Error("register connection failed", zap.String("user_id", c.UserID()), zap.Error(err))
		m.Disconnect(ctx, c)
		return err
	}

	// 註冊期間被外部強制斷線, 補一次清理
	if c.State() != StateOpen {
		m.Disconnect(ctx, c)
		return ErrConnClosed
	}

	logger.Log.Info("websocket connected", zap.String("user_id", c.UserID()), zap.String("conn_id", c.ID()))
	m.announceOnline(ctx, c.UserID())
	return nil
}

// Serve connect and run the receive loop until the socket fails or ctx is done
func (m *Manager) Serve(ctx context.Context, c *Conn) error {
	if err := m.Connect(ctx, c); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		m.Disconnect(context.WithoutCancel(ctx), c)
	})
	defer stop()
	defer m.Disconnect(context.WithoutCancel(ctx), c)

	for {
		_, frame, err := c.socket.ReadMessage()
		if err != nil {
			if c.State() == StateOpen {
				logger.Log.Info("websocket read closed", zap.String("user_id", c.UserID()), zap.Error(err))
			}
			return nil
		}

		msg, err := domain.DecodeControl(frame)
		if err != nil {
			logger.Log.Warn("drop control frame",
				zap.String("user_id", c.UserID()),
				zap.String("conn_id", c.ID()),
				zap.Error(err),
			)
			continue
		}

		switch v := msg.(type) {
		case domain.PingControl:
			if err := m.sendTo(c, domain.NewPongEvent()); err != nil {
				logger.Log.Warn("pong failed", zap.String("user_id", c.UserID()), zap.Error(err))
				return nil
			}
		case domain.JoinConversationControl:
			if err := m.Join(ctx, v.ConversationID, c.UserID()); err != nil {
				logger.Log.Error("join conversation failed",
					zap.String("user_id", c.UserID()),
					zap.String("conversation_id", v.ConversationID),
					zap.Error(err),
				)
			}
		}
	}
}

// Disconnect deregister and close the handle; safe to call any number of times and concurrently with sends
func (m *Manager) Disconnect(ctx context.Context, c *Conn) {
	if c.beginClose() {
		if err := c.finishClose(); err != nil {
			logger.Log.Debug("close socket", zap.String("conn_id", c.ID()), zap.Error(err))
		}
	}

	m.deregister(ctx, c, 1)
}

// deregisterAttempts 取鎖逾時的重試上限, 之後只能等下次送出失敗時回收
const deregisterAttempts = 3

func (m *Manager) deregister(ctx context.Context, c *Conn, attempt int) {
	removed, empty, err := m.presence.Deregister(ctx, c.UserID(), c)
	if err != nil {
		logger.Log.Error("deregister connection failed",
			zap.String("user_id", c.UserID()),
			zap.String("conn_id", c.ID()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < deregisterAttempts {
			time.AfterFunc(m.opts.LockTimeout, func() {
				m.deregister(context.WithoutCancel(ctx), c, attempt+1)
			})
		}
		return
	}
	if !removed {
		return
	}

	logger.Log.Info("websocket disconnected", zap.String("user_id", c.UserID()), zap.String("conn_id", c.ID()))
	if empty {
		m.announceOffline(ctx, c.UserID())
	}
}

// Unicast deliver to every handle of the user
func (m *Manager) Unicast(ctx context.Context, ev domain.Event, userID string) {
	m.UnicastMany(ctx, ev, userID)
}

// UnicastMany deliver to every handle of each listed user
func (m *Manager) UnicastMany(ctx context.Context, ev domain.Event, userIDs ...string) {
	conns, err := m.presence.Handles(ctx, userIDs...)
	if err != nil {
		logger.Log.Error("unicast snapshot failed", zap.String("event", string(ev.EventType())), zap.Error(err))
		return
	}
	m.reap(ctx, m.deliver(ctx, ev, conns))
}

// Multicast deliver to the conversation's interested users except exclude
func (m *Manager) Multicast(ctx context.Context, ev domain.Event, conversationID, exclude string) {
	members, err := m.interest.Members(ctx, conversationID)
	if err != nil {
		logger.Log.Error("multicast snapshot failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}

	targets := members[:0]
	for _, u := range members {
		if u != exclude {
			targets = append(targets, u)
		}
	}
	if len(targets) == 0 {
		return
	}
	m.UnicastMany(ctx, ev, targets...)
}

// BroadcastAll deliver to every online user
func (m *Manager) BroadcastAll(ctx context.Context, ev domain.Event) {
	m.reap(ctx, m.broadcast(ctx, ev))
}

// Join record interest of user in the conversation
func (m *Manager) Join(ctx context.Context, conversationID, userID string) error {
	return m.interest.Join(ctx, conversationID, userID)
}

// Leave remove user from the conversation's interest set, empty userID drops the whole entry
func (m *Manager) Leave(ctx context.Context, conversationID, userID string) error {
	return m.interest.Leave(ctx, conversationID, userID)
}

// IsOnline user has at least one open handle
func (m *Manager) IsOnline(ctx context.Context, userID string) (bool, error) {
	return m.presence.IsOnline(ctx, userID)
}

// OnlineUsers snapshot of online users
func (m *Manager) OnlineUsers(ctx context.Context) ([]string, error) {
	return m.presence.OnlineUsers(ctx)
}

func (m *Manager) broadcast(ctx context.Context, ev domain.Event) []*Conn {
	conns, err := m.presence.AllHandles(ctx)
	if err != nil {
		logger.Log.Error("broadcast snapshot failed", zap.String("event", string(ev.EventType())), zap.Error(err))
		return nil
	}
	return m.deliver(ctx, ev, conns)
}

// deliver 事件只序列化一次, 每個 handle 各自以 SendTimeout 送出, 回傳失敗的 handle
func (m *Manager) deliver(ctx context.Context, ev domain.Event, conns []*Conn) []*Conn {
	if len(conns) == 0 {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("marshal event failed", zap.String("event", string(ev.EventType())), zap.Error(err))
		return nil
	}

	var (
		mu     sync.Mutex
		failed []*Conn
	)
	g := new(errgroup.Group)
	g.SetLimit(m.opts.FanoutConcurrency)
	for _, c := range conns {
		g.Go(func() error {
			if err := c.Send(payload, m.opts.SendTimeout); err != nil {
				if !errors.Is(err, ErrConnClosed) {
					logger.Log.Warn("send failed",
						zap.String("user_id", c.UserID()),
						zap.String("conn_id", c.ID()),
						zap.String("event", string(ev.EventType())),
						zap.Error(err),
					)
				}
				mu.Lock()
				failed = append(failed, c)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

func (m *Manager) sendTo(c *Conn, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.Send(payload, m.opts.SendTimeout)
}

// reap 在送出迴圈結束後才斷開失敗的 handle
func (m *Manager) reap(ctx context.Context, failed []*Conn) {
	for _, c := range failed {
		m.Disconnect(context.WithoutCancel(ctx), c)
	}
}
