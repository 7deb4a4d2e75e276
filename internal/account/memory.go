package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore はプロセス内メモリに保持するStore実装。開発用とテスト用。
type MemoryStore struct {
	mu         sync.RWMutex
	byUsername map[string]Account
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byUsername: make(map[string]Account)}
}

// FindByUsername はユーザー名でアカウントを検索する。
func (s *MemoryStore) FindByUsername(_ context.Context, username string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// Create は新しいアカウントを作成する。
func (s *MemoryStore) Create(_ context.Context, username, pinHash string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[username]; ok {
		return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
	}

	a := Account{
		ID:        uuid.New().String(),
		Username:  username,
		PINHash:   pinHash,
		CreatedAt: time.Now().UTC(),
	}
	s.byUsername[username] = a
	return &a, nil
}

// Len は保持しているアカウント数を返す。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUsername)
}
