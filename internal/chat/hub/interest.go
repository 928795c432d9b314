package hub

import (
	"context"
	"time"
)

// InterestIndex conversation_id -> set of watching users
// 僅存在記憶體, 重啟後由客戶端重新 join 建立
// 斷線不會移除 join 紀錄, 只有 Leave (關閉對話時整筆刪除) 才會釋放,
// 因此大小隨 open 對話數與其參與者成長
type InterestIndex struct {
	mu    *rwLock
	convs map[string]map[string]struct{}
}

// NewInterestIndex create interest index
func NewInterestIndex(lockTimeout time.Duration) *InterestIndex {
	return &InterestIndex{
		mu:    newRWLock(lockTimeout),
		convs: make(map[string]map[string]struct{}),
	}
}

// Join add user to the conversation's interest set
func (i *InterestIndex) Join(ctx context.Context, conversationID, userID string) error {
	if err := i.mu.Lock(ctx); err != nil {
		return err
	}
	defer i.mu.Unlock()

	set, ok := i.convs[conversationID]
	if !ok {
		set = make(map[string]struct{})
		i.convs[conversationID] = set
	}
	set[userID] = struct{}{}
	return nil
}

// Leave remove one user, or the whole entry when userID is empty
func (i *InterestIndex) Leave(ctx context.Context, conversationID, userID string) error {
	if err := i.mu.Lock(ctx); err != nil {
		return err
	}
	defer i.mu.Unlock()

	if userID == "" {
		delete(i.convs, conversationID)
		return nil
	}
	set, ok := i.convs[conversationID]
	if !ok {
		return nil
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(i.convs, conversationID)
	}
	return nil
}

// Members snapshot of the conversation's interest set
func (i *InterestIndex) Members(ctx context.Context, conversationID string) ([]string, error) {
	if err := i.mu.RLock(ctx); err != nil {
		return nil, err
	}
	defer i.mu.RUnlock()

	set := i.convs[conversationID]
	users := make([]string, 0, len(set))
	for u := range set {
		users = append(users, u)
	}
	return users, nil
}
