package testtool

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var (
	// ErrSocketClosed returned by a closed FakeSocket
	ErrSocketClosed = errors.New("fake socket closed")
	// ErrWriteDeadline write did not finish before the write deadline
	ErrWriteDeadline = errors.New("fake socket write deadline exceeded")
)

const textMessage = 1

type frame struct {
	mt   int
	data []byte
}

// FakeSocket in-memory websocket: Push 模擬客戶端送出的 frame, Frames 取得伺服器寫入的 frame
type FakeSocket struct {
	mu         sync.Mutex
	inbound    chan frame
	written    [][]byte
	writeErr   error
	writeDelay time.Duration
	deadline   time.Time
	closed     bool
	closeCh    chan struct{}
	closeOnce  sync.Once
}

// NewFakeSocket create open fake socket
func NewFakeSocket() *FakeSocket {
	return &FakeSocket{
		inbound: make(chan frame, 64),
		closeCh: make(chan struct{}),
	}
}

// ReadMessage block until a pushed frame or close
func (s *FakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case f := <-s.inbound:
		return f.mt, f.data, nil
	case <-s.closeCh:
		return 0, nil, ErrSocketClosed
	}
}

// WriteMessage record the frame
func (s *FakeSocket) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	delay, deadline := s.writeDelay, s.deadline
	s.mu.Unlock()
	if delay > 0 {
		// 與真實連線相同, 超過 write deadline 即失敗
		if !deadline.IsZero() && time.Until(deadline) < delay {
			select {
			case <-time.After(time.Until(deadline)):
				return ErrWriteDeadline
			case <-s.closeCh:
				return ErrSocketClosed
			}
		}
		select {
		case <-time.After(delay):
		case <-s.closeCh:
			return ErrSocketClosed
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSocketClosed
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, append([]byte(nil), data...))
	return nil
}

// SetWriteDeadline deadline applied to slow writes
func (s *FakeSocket) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = t
	return nil
}

// Close unblock readers, later writes fail
func (s *FakeSocket) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.closeCh)
	})
	return nil
}

// Push enqueue a client -> server text frame
func (s *FakeSocket) Push(data string) {
	select {
	case s.inbound <- frame{mt: textMessage, data: []byte(data)}:
	case <-s.closeCh:
	}
}

// FailWrites make every following write return err
func (s *FakeSocket) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// SlowWrites delay every following write
func (s *FakeSocket) SlowWrites(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeDelay = d
}

// Closed report whether Close was called
func (s *FakeSocket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Frames copy of every written frame
func (s *FakeSocket) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.written))
	copy(out, s.written)
	return out
}

// Events written frames decoded as json objects, optionally filtered by "type"
func (s *FakeSocket) Events(types ...string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, f := range s.Frames() {
		var ev map[string]interface{}
		if err := json.Unmarshal(f, &ev); err != nil {
			continue
		}
		if len(types) == 0 || contains(types, ev["type"]) {
			out = append(out, ev)
		}
	}
	return out
}

// WaitForEvents poll until at least n events of the type were written
func (s *FakeSocket) WaitForEvents(eventType string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if len(s.Events(eventType)) >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func contains(types []string, v interface{}) bool {
	t, ok := v.(string)
	if !ok {
		return false
	}
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}
