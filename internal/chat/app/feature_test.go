package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"marketplace_service/internal/chat/domain"
	"marketplace_service/internal/chat/hub"
	testtool "marketplace_service/pkg/test_tool"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
)

const eventWait = time.Second

// memStore in-memory message store for feature runs
type memStore struct {
	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	messages      []domain.Message
}

type memConversations struct{ *memStore }

type memMessages struct{ *memStore }

func newMemStore() *memStore {
	return &memStore{conversations: make(map[string]*domain.Conversation)}
}

func (s memConversations) FindOrCreate(_ context.Context, a, b string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a == b {
		return nil, fmt.Errorf("%w: %w", domain.ErrRejectedWrite, domain.ErrSelfConversation)
	}
	key := domain.PairKey(a, b)
	for _, c := range s.conversations {
		if c.IsActive && c.PairKey == key {
			cp := *c
			return &cp, nil
		}
	}
	c := &domain.Conversation{ConversationID: uuid.NewString(), ParticipantA: a, ParticipantB: b, PairKey: key, IsActive: true, CreatedAt: time.Now()}
	s.conversations[c.ConversationID] = c
	cp := *c
	return &cp, nil
}

func (s memConversations) FindByID(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	cp := *c
	return &cp, nil
}

func (s memConversations) ListByUser(_ context.Context, userID string, skip, limit int) ([]domain.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ConversationSummary
	for _, c := range s.conversations {
		if c.IsActive && c.HasParticipant(userID) {
			out = append(out, domain.ConversationSummary{Conversation: *c})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if skip >= len(out) {
		return nil, nil
	}
	out = out[skip:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memConversations) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return domain.ErrConversationNotFound
	}
	c.IsActive = false
	return nil
}

func (s memConversations) UnreadCount(_ context.Context, id, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.ConversationID == id && m.SenderID != userID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (s memMessages) Append(_ context.Context, id, sender, content string, mt domain.MessageType) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || !c.IsActive || !c.HasParticipant(sender) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRejectedWrite, id)
	}
	m := domain.Message{MessageID: uuid.NewString(), ConversationID: id, SenderID: sender, Content: content, MessageType: mt, SentAt: time.Now()}
	s.messages = append(s.messages, m)
	preview := domain.Preview(content)
	c.LastMessage, c.LastMessageAt = &preview, &m.SentAt
	return &m, nil
}

func (s memMessages) MarkRead(_ context.Context, id, reader string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.ConversationID == id && m.SenderID != reader && !m.IsRead {
			now := time.Now()
			m.IsRead, m.ReadAt = true, &now
			n++
		}
	}
	return n, nil
}

func (s memMessages) List(_ context.Context, id string, skip, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.ConversationID == id {
			out = append(out, m)
		}
	}
	if skip >= len(out) {
		return nil, nil
	}
	out = out[skip:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memMessages) FindByID(_ context.Context, id string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.MessageID == id {
			cp := m
			return &cp, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func (s memMessages) SetRead(_ context.Context, id string, isRead bool) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		m := &s.messages[i]
		if m.MessageID != id {
			continue
		}
		m.IsRead, m.ReadAt = isRead, nil
		if isRead {
			now := time.Now()
			m.ReadAt = &now
		}
		cp := *m
		return &cp, nil
	}
	return nil, domain.ErrMessageNotFound
}

func (s memMessages) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.MessageID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return nil
		}
	}
	return domain.ErrMessageNotFound
}

type chatWorld struct {
	ctx     context.Context
	cancel  context.CancelFunc
	manager *hub.Manager
	uc      *MessageUseCase
	sockets map[string]*testtool.FakeSocket
	convs   map[string]string
	served  sync.WaitGroup
}

func newChatWorld() *chatWorld {
	ctx, cancel := context.WithCancel(context.Background())
	manager := hub.NewManager(hub.Options{SendTimeout: 200 * time.Millisecond, LockTimeout: time.Second}, nil)
	store := newMemStore()
	return &chatWorld{
		ctx:     ctx,
		cancel:  cancel,
		manager: manager,
		uc:      NewMessageUseCase(memConversations{store}, memMessages{store}, manager),
		sockets: make(map[string]*testtool.FakeSocket),
		convs:   make(map[string]string),
	}
}

func (w *chatWorld) isConnected(user string) error {
	sock := testtool.NewFakeSocket()
	w.sockets[user] = sock
	c := hub.NewConn(user, sock)
	w.served.Add(1)
	go func() {
		defer w.served.Done()
		_ = w.manager.Serve(w.ctx, c)
	}()
	// 自己的上線公告代表已完成註冊
	if !sock.WaitForEvents(string(domain.EventUserOnline), 1, eventWait) {
		return fmt.Errorf("%s never came online", user)
	}
	return nil
}

func (w *chatWorld) conversationBetween(label, a, b string) error {
	conv, err := w.uc.StartConversation(w.ctx, a, b)
	if err != nil {
		return err
	}
	w.convs[label] = conv.ConversationID
	return nil
}

func (w *chatWorld) joinsConversation(user, label string) error {
	sock := w.sockets[user]
	pongs := len(sock.Events(string(domain.EventPong)))
	sock.Push(fmt.Sprintf(`{"type":"join_conversation","conversation_id":%q}`, w.convs[label]))
	// 控制訊息依序處理, 收到 pong 即代表 join 已完成
	sock.Push(`{"type":"ping"}`)
	if !sock.WaitForEvents(string(domain.EventPong), pongs+1, eventWait) {
		return fmt.Errorf("%s join of %s not acknowledged", user, label)
	}
	return nil
}

func (w *chatWorld) sends(user, content, label string) error {
	_, err := w.uc.SendMessage(w.ctx, w.convs[label], user, content, "")
	return err
}

func (w *chatWorld) marksRead(user, label string) error {
	_, err := w.uc.MarkRead(w.ctx, w.convs[label], user)
	return err
}

func (w *chatWorld) disconnects(user string) error {
	w.sockets[user].Close()
	return nil
}

func (w *chatWorld) receivesEvents(user string, n int, eventType string) error {
	sock := w.sockets[user]
	if n > 0 && !sock.WaitForEvents(eventType, n, eventWait) {
		return fmt.Errorf("%s got %d %s events, want %d", user, len(sock.Events(eventType)), eventType, n)
	}
	if got := len(sock.Events(eventType)); got != n {
		return fmt.Errorf("%s got %d %s events, want %d", user, got, eventType, n)
	}
	return nil
}

func (w *chatWorld) receivesEventContaining(user string, n int, eventType, text string) error {
	if err := w.receivesEvents(user, n, eventType); err != nil {
		return err
	}
	for _, ev := range w.sockets[user].Events(eventType) {
		msg, _ := ev["message"].(map[string]interface{})
		if content, _ := msg["content"].(string); !strings.Contains(content, text) {
			return fmt.Errorf("%s event content %q does not contain %q", eventType, content, text)
		}
	}
	return nil
}

func (w *chatWorld) unreadCountIs(label, user string, want int) error {
	n, err := w.uc.UnreadCount(w.ctx, w.convs[label], user)
	if err != nil {
		return err
	}
	if n != int64(want) {
		return fmt.Errorf("unread count of %s for %s is %d, want %d", label, user, n, want)
	}
	return nil
}

// InitializeChatScenario register steps, 每個 scenario 使用新的 manager 與 store
func InitializeChatScenario(sc *godog.ScenarioContext) {
	w := newChatWorld()

	sc.Step(`^"([^"]*)" is connected$`, w.isConnected)
	sc.Step(`^a conversation "([^"]*)" between "([^"]*)" and "([^"]*)"$`, w.conversationBetween)
	sc.Step(`^"([^"]*)" joins conversation "([^"]*)"$`, w.joinsConversation)
	sc.Step(`^"([^"]*)" sends "([^"]*)" in "([^"]*)"$`, w.sends)
	sc.Step(`^"([^"]*)" marks "([^"]*)" read$`, w.marksRead)
	sc.Step(`^"([^"]*)" disconnects$`, w.disconnects)
	sc.Step(`^"([^"]*)" receives (\d+) "([^"]*)" event containing "([^"]*)"$`, w.receivesEventContaining)
	sc.Step(`^"([^"]*)" receives (\d+) "([^"]*)" event$`, w.receivesEvents)
	sc.Step(`^the unread count of "([^"]*)" for "([^"]*)" is (\d+)$`, w.unreadCountIs)

	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		w.cancel()
		w.served.Wait()
		return ctx, err
	})
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "chat_delivery",
		ScenarioInitializer: InitializeChatScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
