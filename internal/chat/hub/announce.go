package hub

import (
	"context"
	"sync"
	"time"

	"marketplace_service/internal/chat/domain"
	"marketplace_service/pkg/logger"

	"go.uber.org/zap"
)

// announcement latest presence announcement of a user
type announcement struct {
	gen    uint64
	online bool
}

// announcer 在短暫持鎖內決定是否公告並配發世代, 送出與 mirror 都在鎖外
// 較舊世代的公告在送出前若已被取代就丟棄
type announcer struct {
	mu     *rwLock
	gen    uint64
	latest map[string]announcement
}

func newAnnouncer(lockTimeout time.Duration) *announcer {
	return &announcer{
		mu:     newRWLock(lockTimeout),
		latest: make(map[string]announcement),
	}
}

// current announcement gen is still the latest one for the user
func (a *announcer) current(ctx context.Context, userID string, gen uint64) bool {
	if err := a.mu.RLock(ctx); err != nil {
		return false
	}
	defer a.mu.RUnlock()

	last, ok := a.latest[userID]
	return ok && last.gen == gen
}

// settle drop the offline record once its announcement went out, unless a newer one replaced it
func (a *announcer) settle(ctx context.Context, userID string, gen uint64) {
	if err := a.mu.Lock(ctx); err != nil {
		return
	}
	defer a.mu.Unlock()

	if last, ok := a.latest[userID]; ok && last.gen == gen && !last.online {
		delete(a.latest, userID)
	}
}

// announceOnline 每個新 handle 都公告一次 user_online
func (m *Manager) announceOnline(ctx context.Context, userID string) {
	gen, at, ok := m.claim(ctx, userID, true)
	if !ok {
		return
	}
	if !m.announcer.current(ctx, userID, gen) {
		return
	}
	m.reap(ctx, m.broadcast(ctx, domain.NewPresenceEvent(true, userID, at)))
}

// announceOffline 只有先前公告過上線且目前已無 handle 時才公告 user_offline
func (m *Manager) announceOffline(ctx context.Context, userID string) {
	gen, at, ok := m.claim(ctx, userID, false)
	if !ok {
		return
	}
	if m.announcer.current(ctx, userID, gen) {
		m.reap(ctx, m.broadcast(ctx, domain.NewPresenceEvent(false, userID, at)))
	}
	m.announcer.settle(context.WithoutCancel(ctx), userID, gen)
}

// claim 在 announcer 鎖內比對 registry 狀態並配發新世代, mirror 依世代順序入列
func (m *Manager) claim(ctx context.Context, userID string, online bool) (uint64, time.Time, bool) {
	a := m.announcer
	if err := a.mu.Lock(ctx); err != nil {
		logger.Log.Error("announce lock failed", zap.String("user_id", userID), zap.Bool("online", online), zap.Error(err))
		return 0, time.Time{}, false
	}
	defer a.mu.Unlock()

	isOnline, err := m.presence.IsOnline(ctx, userID)
	if err != nil {
		logger.Log.Error("presence check failed", zap.String("user_id", userID), zap.Error(err))
		return 0, time.Time{}, false
	}
	if isOnline != online {
		return 0, time.Time{}, false
	}
	if !online {
		if last, ok := a.latest[userID]; !ok || !last.online {
			return 0, time.Time{}, false
		}
	}

	a.gen++
	a.latest[userID] = announcement{gen: a.gen, online: online}
	at := m.now()
	m.mirror.enqueue(presenceChange{userID: userID, online: online, at: at})
	return a.gen, at, true
}

type presenceChange struct {
	userID string
	online bool
	at     time.Time
}

// mirrorQueueSize 佇列滿時丟棄變更, last_seen 只是輔助資訊
const mirrorQueueSize = 1024

// mirror 單一 worker 依入列順序呼叫 PresenceObserver
type mirror struct {
	observer PresenceObserver
	timeout  time.Duration
	queue    chan presenceChange
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

func newMirror(observer PresenceObserver, timeout time.Duration) *mirror {
	mr := &mirror{
		observer: observer,
		timeout:  timeout,
		queue:    make(chan presenceChange, mirrorQueueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if observer == nil {
		close(mr.stopped)
		return mr
	}
	go mr.run()
	return mr
}

func (mr *mirror) enqueue(ch presenceChange) {
	if mr.observer == nil {
		return
	}
	select {
	case <-mr.done:
		return
	default:
	}
	select {
	case mr.queue <- ch:
	default:
		logger.Log.Warn("presence mirror queue full", zap.String("user_id", ch.userID), zap.Bool("online", ch.online))
	}
}

func (mr *mirror) run() {
	defer close(mr.stopped)
	for {
		select {
		case ch := <-mr.queue:
			mr.observe(ch)
		case <-mr.done:
			// 把已入列的變更寫完
			for {
				select {
				case ch := <-mr.queue:
					mr.observe(ch)
				default:
					return
				}
			}
		}
	}
}

func (mr *mirror) close() {
	mr.once.Do(func() { close(mr.done) })
	<-mr.stopped
}

func (mr *mirror) observe(ch presenceChange) {
	ctx, cancel := context.WithTimeout(context.Background(), mr.timeout)
	defer cancel()

	var err error
	if ch.online {
		err = mr.observer.MarkOnline(ctx, ch.userID, ch.at)
	} else {
		err = mr.observer.MarkOffline(ctx, ch.userID, ch.at)
	}
	if err != nil {
		logger.Log.Warn("presence mirror failed", zap.String("user_id", ch.userID), zap.Bool("online", ch.online), zap.Error(err))
	}
}
