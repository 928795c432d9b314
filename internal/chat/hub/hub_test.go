package hub

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"marketplace_service/internal/chat/domain"
	"marketplace_service/pkg/logger"
	testtool "marketplace_service/pkg/test_tool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetNewNop()
	os.Exit(m.Run())
}

func TestRegistry_RegisterDeregister(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(time.Second)
	h1 := NewConn("alice", testtool.NewFakeSocket())
	h2 := NewConn("alice", testtool.NewFakeSocket())

	require.NoError(t, r.Register(ctx, "alice", h1))
	require.NoError(t, r.Register(ctx, "alice", h1)) // 重複註冊為 no-op
	require.NoError(t, r.Register(ctx, "alice", h2))

	conns, err := r.Handles(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, conns, 2)

	removed, empty, err := r.Deregister(ctx, "alice", h1)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, empty)

	online, err := r.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)

	removed, empty, err = r.Deregister(ctx, "alice", h2)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.True(t, empty)

	// 空集合必須被移除
	_, ok := r.users["alice"]
	assert.False(t, ok)

	removed, _, err = r.Deregister(ctx, "alice", h2)
	require.NoError(t, err)
	assert.False(t, removed)

	users, err := r.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRegistry_LockTimeout(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(20 * time.Millisecond)
	require.NoError(t, r.mu.Lock(ctx))
	defer r.mu.Unlock()

	start := time.Now()
	_, err := r.IsOnline(ctx, "alice")
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Less(t, time.Since(start), time.Second)

	err = r.Register(ctx, "alice", NewConn("alice", testtool.NewFakeSocket()))
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(time.Second)
	require.NoError(t, r.mu.RLock(ctx))
	defer r.mu.RUnlock()

	// 持有讀鎖時其他讀者仍可進入
	_, err := r.OnlineUsers(ctx)
	assert.NoError(t, err)
}

func TestInterestIndex(t *testing.T) {
	ctx := context.Background()
	idx := NewInterestIndex(time.Second)

	require.NoError(t, idx.Join(ctx, "c1", "alice"))
	require.NoError(t, idx.Join(ctx, "c1", "bob"))
	require.NoError(t, idx.Join(ctx, "c1", "bob"))
	require.NoError(t, idx.Join(ctx, "c2", "alice"))

	members, err := idx.Members(ctx, "c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, members)

	require.NoError(t, idx.Leave(ctx, "c1", "bob"))
	members, _ = idx.Members(ctx, "c1")
	assert.Equal(t, []string{"alice"}, members)

	require.NoError(t, idx.Leave(ctx, "c1", "alice"))
	_, ok := idx.convs["c1"]
	assert.False(t, ok)

	require.NoError(t, idx.Join(ctx, "c2", "bob"))
	require.NoError(t, idx.Leave(ctx, "c2", ""))
	members, _ = idx.Members(ctx, "c2")
	assert.Empty(t, members)

	assert.NoError(t, idx.Leave(ctx, "missing", "alice"))
}

func TestConn_StateMachine(t *testing.T) {
	sock := testtool.NewFakeSocket()
	c := NewConn("alice", sock)
	assert.Equal(t, StateConnecting, c.State())
	assert.ErrorIs(t, c.Send([]byte("x"), time.Second), ErrConnClosed)

	assert.True(t, c.open())
	assert.False(t, c.open())
	assert.Equal(t, StateOpen, c.State())
	assert.NoError(t, c.Send([]byte(`{"type":"pong"}`), time.Second))

	assert.True(t, c.beginClose())
	assert.False(t, c.beginClose())
	assert.Equal(t, StateClosing, c.State())
	require.NoError(t, c.finishClose())
	assert.Equal(t, StateClosed, c.State())
	assert.True(t, sock.Closed())
	assert.ErrorIs(t, c.Send([]byte("x"), time.Second), ErrConnClosed)
}

func TestConn_SendTimeoutOnBusyWriter(t *testing.T) {
	c := NewConn("alice", testtool.NewFakeSocket())
	require.True(t, c.open())

	c.writeMu <- struct{}{}
	defer func() { <-c.writeMu }()

	err := c.Send([]byte("x"), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrSendTimeout)
}

type presenceCall struct {
	userID string
	online bool
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []presenceCall
}

func (o *recordingObserver) MarkOnline(_ context.Context, userID string, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, presenceCall{userID, true})
	return nil
}

func (o *recordingObserver) MarkOffline(_ context.Context, userID string, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, presenceCall{userID, false})
	return nil
}

func (o *recordingObserver) Calls() []presenceCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]presenceCall(nil), o.calls...)
}

func newTestManager(t *testing.T, obs PresenceObserver) *Manager {
	t.Helper()
	m := NewManager(Options{
		SendTimeout:       100 * time.Millisecond,
		LockTimeout:       time.Second,
		FanoutConcurrency: 4,
	}, obs)
	t.Cleanup(m.Close)
	return m
}

func connect(t *testing.T, m *Manager, userID string) (*Conn, *testtool.FakeSocket) {
	t.Helper()
	sock := testtool.NewFakeSocket()
	c := NewConn(userID, sock)
	require.NoError(t, m.Connect(context.Background(), c))
	return c, sock
}

func TestManager_ConnectBroadcastsOnline(t *testing.T) {
	obs := &recordingObserver{}
	m := newTestManager(t, obs)

	_, bobSock := connect(t, m, "bob")
	_, aliceSock := connect(t, m, "alice")

	online := bobSock.Events("user_online")
	require.Len(t, online, 2)
	assert.Equal(t, "bob", online[0]["user_id"])
	assert.Equal(t, "alice", online[1]["user_id"])
	assert.NotEmpty(t, online[1]["timestamp"])

	// 連線者本身也會收到自己的上線公告
	assert.Len(t, aliceSock.Events("user_online"), 1)
	assert.Eventually(t, func() bool { return len(obs.Calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []presenceCall{{"bob", true}, {"alice", true}}, obs.Calls())
}

func TestManager_UnicastReachesEveryDevice(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	_, s1 := connect(t, m, "alice")
	_, s2 := connect(t, m, "alice")
	_, bob := connect(t, m, "bob")

	m.Unicast(ctx, domain.NewPongEvent(), "alice")

	assert.Len(t, s1.Events("pong"), 1)
	assert.Len(t, s2.Events("pong"), 1)
	assert.Empty(t, bob.Events("pong"))
}

func TestManager_DisconnectLastDeviceAnnouncesOfflineOnce(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	m := newTestManager(t, obs)
	h1, _ := connect(t, m, "alice")
	h2, _ := connect(t, m, "alice")
	_, bob := connect(t, m, "bob")

	m.Disconnect(ctx, h1)
	online, err := m.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)
	assert.Empty(t, bob.Events("user_offline"))

	m.Disconnect(ctx, h2)
	m.Disconnect(ctx, h2) // 重複斷線為 no-op
	m.Disconnect(ctx, h1)

	online, err = m.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online)

	offline := bob.Events("user_offline")
	require.Len(t, offline, 1)
	assert.Equal(t, "alice", offline[0]["user_id"])
	assert.Equal(t, StateClosed, h2.State())

	users, err := m.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)
	assert.Eventually(t, func() bool {
		for _, c := range obs.Calls() {
			if c == (presenceCall{"alice", false}) {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestManager_MulticastExcludesSender(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	_, alice := connect(t, m, "alice")
	_, bob := connect(t, m, "bob")
	_, carol := connect(t, m, "carol")

	require.NoError(t, m.Join(ctx, "c1", "alice"))
	require.NoError(t, m.Join(ctx, "c1", "bob"))

	msg := domain.Message{MessageID: "m1", ConversationID: "c1", SenderID: "bob", Content: "hi", SentAt: time.Now()}
	m.Multicast(ctx, domain.NewNewMessageEvent(msg), "c1", "bob")

	assert.Len(t, alice.Events("new_message"), 1)
	assert.Empty(t, bob.Events("new_message"))
	assert.Empty(t, carol.Events("new_message"))
}

func TestManager_MulticastSkipsOfflineMembers(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	_, alice := connect(t, m, "alice")
	require.NoError(t, m.Join(ctx, "c1", "alice"))
	require.NoError(t, m.Join(ctx, "c1", "dave")) // 未連線

	m.Multicast(ctx, domain.NewPongEvent(), "c1", "")
	assert.Len(t, alice.Events("pong"), 1)
}

func TestManager_FailedHandleIsReapedWithoutAbortingSiblings(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	broken, brokenSock := connect(t, m, "alice")
	_, healthy := connect(t, m, "alice")
	_, bob := connect(t, m, "bob")

	brokenSock.FailWrites(errors.New("broken pipe"))
	m.Unicast(ctx, domain.NewPongEvent(), "alice")

	assert.Len(t, healthy.Events("pong"), 1)
	assert.Equal(t, StateClosed, broken.State())
	assert.True(t, brokenSock.Closed())

	conns, err := m.presence.Handles(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, conns, 1)

	// alice 仍有另一個裝置, 不會公告離線
	assert.Empty(t, bob.Events("user_offline"))
}

func TestManager_SlowHandleDoesNotStallFanout(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	slow, slowSock := connect(t, m, "slow")
	_, fast := connect(t, m, "fast")

	slowSock.SlowWrites(time.Second)
	start := time.Now()
	m.BroadcastAll(ctx, domain.NewPongEvent())

	assert.Less(t, time.Since(start), 800*time.Millisecond)
	assert.Len(t, fast.Events("pong"), 1)
	assert.Equal(t, StateClosed, slow.State())

	offline := fast.Events("user_offline")
	require.Len(t, offline, 1)
	assert.Equal(t, "slow", offline[0]["user_id"])
}

func TestManager_ServeControlProtocol(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := newTestManager(t, nil)

	sock := testtool.NewFakeSocket()
	c := NewConn("alice", sock)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Serve(ctx, c)
	}()

	sock.Push("not json at all")
	sock.Push(`{"type":"teleport"}`)
	sock.Push(`{"type":"join_conversation","conversation_id":"c1"}`)
	sock.Push(`{"type":"ping"}`)

	require.True(t, sock.WaitForEvents("pong", 1, time.Second))
	assert.Equal(t, StateOpen, c.State())

	members, err := m.interest.Members(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)

	// 只回覆給發出 ping 的 handle
	_, other := connect(t, m, "alice")
	sock.Push(`{"type":"ping"}`)
	require.True(t, sock.WaitForEvents("pong", 2, time.Second))
	assert.Empty(t, other.Events("pong"))

	require.NoError(t, sock.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("receive loop did not stop after close")
	}
	assert.Equal(t, StateClosed, c.State())

	conns, err := m.presence.Handles(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, conns, 1)
}

func TestManager_ServeStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := newTestManager(t, nil)

	sock := testtool.NewFakeSocket()
	c := NewConn("alice", sock)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Serve(ctx, c)
	}()

	require.Eventually(t, func() bool { return c.State() == StateOpen }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("receive loop did not stop after cancel")
	}
	assert.True(t, sock.Closed())

	online, err := m.IsOnline(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestManager_ConnectAfterCloseFails(t *testing.T) {
	m := newTestManager(t, nil)
	c := NewConn("alice", testtool.NewFakeSocket())
	m.Disconnect(context.Background(), c)

	assert.ErrorIs(t, m.Connect(context.Background(), c), ErrConnClosed)
	online, err := m.IsOnline(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestManager_ConcurrentFanoutAndDisconnect(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	var conns []*Conn
	for i := 0; i < 20; i++ {
		c, _ := connect(t, m, "user")
		conns = append(conns, c)
	}
	_, watcher := connect(t, m, "watcher")

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(2)
		go func(c *Conn) {
			defer wg.Done()
			m.Disconnect(ctx, c)
		}(c)
		go func() {
			defer wg.Done()
			m.Unicast(ctx, domain.NewPongEvent(), "user")
		}()
	}
	wg.Wait()

	online, err := m.IsOnline(ctx, "user")
	require.NoError(t, err)
	assert.False(t, online)
	assert.Len(t, watcher.Events("user_offline"), 1)
}

type slowObserver struct {
	recordingObserver
	delay time.Duration
}

func (o *slowObserver) MarkOnline(ctx context.Context, userID string, at time.Time) error {
	time.Sleep(o.delay)
	return o.recordingObserver.MarkOnline(ctx, userID, at)
}

func (o *slowObserver) MarkOffline(ctx context.Context, userID string, at time.Time) error {
	time.Sleep(o.delay)
	return o.recordingObserver.MarkOffline(ctx, userID, at)
}

// 慢的 presence mirror 不可讓不同使用者的 Connect 互相排隊
func TestManager_SlowObserverDoesNotSerializeConnects(t *testing.T) {
	obs := &slowObserver{delay: 200 * time.Millisecond}
	m := NewManager(Options{SendTimeout: time.Second, LockTimeout: time.Second}, obs)

	users := []string{"u0", "u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8", "u9"}
	start := time.Now()
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			assert.NoError(t, m.Connect(context.Background(), NewConn(u, testtool.NewFakeSocket())))
		}(u)
	}
	wg.Wait()
	assert.Less(t, time.Since(start), time.Second)

	// Close 會等佇列中的變更全部寫完
	m.Close()
	calls := obs.Calls()
	assert.Len(t, calls, len(users))
	for _, c := range calls {
		assert.True(t, c.online)
	}
}

func TestManager_MirrorKeepsTransitionOrder(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	m := newTestManager(t, obs)

	c, _ := connect(t, m, "alice")
	m.Disconnect(ctx, c)
	connect(t, m, "alice")

	m.Close()
	assert.Equal(t, []presenceCall{{"alice", true}, {"alice", false}, {"alice", true}}, obs.Calls())
}

func TestManager_OvertakenAnnouncementIsDropped(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	h1, _ := connect(t, m, "alice")
	first := m.announcer.latest["alice"].gen
	h2, _ := connect(t, m, "alice")

	assert.False(t, m.announcer.current(ctx, "alice", first))
	assert.True(t, m.announcer.current(ctx, "alice", m.announcer.latest["alice"].gen))

	// 已無 handle 時 offline 紀錄送出後即移除
	m.Disconnect(ctx, h1)
	m.Disconnect(ctx, h2)
	_, ok := m.announcer.latest["alice"]
	assert.False(t, ok)
}

func TestManager_DeregisterRetriesAfterLockTimeout(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Options{SendTimeout: 100 * time.Millisecond, LockTimeout: 20 * time.Millisecond}, nil)
	defer m.Close()

	c, _ := connect(t, m, "alice")
	_, bob := connect(t, m, "bob")

	require.NoError(t, m.presence.mu.Lock(ctx))
	m.Disconnect(ctx, c)
	m.presence.mu.Unlock()

	assert.Equal(t, StateClosed, c.State())
	assert.Eventually(t, func() bool {
		online, err := m.IsOnline(ctx, "alice")
		return err == nil && !online
	}, time.Second, 5*time.Millisecond)
	assert.True(t, bob.WaitForEvents("user_offline", 1, time.Second))
}
