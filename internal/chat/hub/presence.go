package hub

import (
	"context"
	"time"
)

// Registry user_id -> set of open handles
// user 存在於 map 中 <=> 其 handle 集合非空
type Registry struct {
	mu    *rwLock
	users map[string]map[string]*Conn
}

// NewRegistry create presence registry
func NewRegistry(lockTimeout time.Duration) *Registry {
	return &Registry{
		mu:    newRWLock(lockTimeout),
		users: make(map[string]map[string]*Conn),
	}
}

// Register add handle to the user's set, registering the same handle twice is a no-op
func (r *Registry) Register(ctx context.Context, userID string, c *Conn) error {
	if err := r.mu.Lock(ctx); err != nil {
		return err
	}
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]*Conn)
		r.users[userID] = set
	}
	set[c.ID()] = c
	return nil
}

// Deregister remove handle; removed reports whether it was present,
// empty reports whether the user has no handle left (decided inside the same critical section)
func (r *Registry) Deregister(ctx context.Context, userID string, c *Conn) (removed bool, empty bool, err error) {
	if err := r.mu.Lock(ctx); err != nil {
		return false, false, err
	}
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		return false, true, nil
	}
	if _, ok := set[c.ID()]; ok {
		delete(set, c.ID())
		removed = true
	}
	if len(set) == 0 {
		delete(r.users, userID)
		return removed, true, nil
	}
	return removed, false, nil
}

// IsOnline user has at least one open handle
func (r *Registry) IsOnline(ctx context.Context, userID string) (bool, error) {
	if err := r.mu.RLock(ctx); err != nil {
		return false, err
	}
	defer r.mu.RUnlock()

	_, ok := r.users[userID]
	return ok, nil
}

// OnlineUsers snapshot of online users, no ordering guarantee
func (r *Registry) OnlineUsers(ctx context.Context) ([]string, error) {
	if err := r.mu.RLock(ctx); err != nil {
		return nil, err
	}
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.users))
	for u := range r.users {
		users = append(users, u)
	}
	return users, nil
}

// Handles snapshot of the handles of the given users
func (r *Registry) Handles(ctx context.Context, userIDs ...string) ([]*Conn, error) {
	if err := r.mu.RLock(ctx); err != nil {
		return nil, err
	}
	defer r.mu.RUnlock()

	var conns []*Conn
	for _, u := range userIDs {
		for _, c := range r.users[u] {
			conns = append(conns, c)
		}
	}
	return conns, nil
}

// AllHandles snapshot of every registered handle
func (r *Registry) AllHandles(ctx context.Context) ([]*Conn, error) {
	if err := r.mu.RLock(ctx); err != nil {
		return nil, err
	}
	defer r.mu.RUnlock()

	var conns []*Conn
	for _, set := range r.users {
		for _, c := range set {
			conns = append(conns, c)
		}
	}
	return conns, nil
}
