package hub

import (
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// State connection lifecycle
type State int32

const (
	// StateConnecting handshake done, not registered yet
	StateConnecting State = iota
	// StateOpen registered, receive loop running
	StateOpen
	// StateClosing disconnect in progress
	StateClosing
	// StateClosed terminal
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Socket the part of *websocket.Conn the manager needs
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn one open stream of a user
type Conn struct {
	id     string
	userID string
	socket Socket
	state  atomic.Int32
	// 單一寫入者, 以 1 格 channel 當作可逾時的 mutex
	writeMu chan struct{}
}

// NewConn wrap a socket for userID, state CONNECTING
func NewConn(userID string, socket Socket) *Conn {
	return &Conn{
		id:      uuid.NewString(),
		userID:  userID,
		socket:  socket,
		writeMu: make(chan struct{}, 1),
	}
}

// ID handle id
func (c *Conn) ID() string { return c.id }

// UserID owning user
func (c *Conn) UserID() string { return c.userID }

// State current state
func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) open() bool {
	return c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// beginClose 只有第一個呼叫者會回傳 true
func (c *Conn) beginClose() bool {
	for {
		s := c.state.Load()
		if s == int32(StateClosing) || s == int32(StateClosed) {
			return false
		}
		if c.state.CompareAndSwap(s, int32(StateClosing)) {
			return true
		}
	}
}

func (c *Conn) finishClose() error {
	err := c.socket.Close()
	c.state.Store(int32(StateClosed))
	return err
}

// Send write one text frame, bounded by timeout
func (c *Conn) Send(payload []byte, timeout time.Duration) error {
	if c.State() != StateOpen {
		return ErrConnClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.writeMu <- struct{}{}:
	case <-timer.C:
		return ErrSendTimeout
	}
	defer func() { <-c.writeMu }()

	if c.State() != StateOpen {
		return ErrConnClosed
	}
	if err := c.socket.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return c.socket.WriteMessage(websocket.TextMessage, payload)
}
