package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// updateWindow is how long processed update ids are remembered.
const updateWindow = 10 * time.Minute

// MemoryStore keeps sessions in process memory. State is lost on restart,
// so it only suits a single instance.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	locks    map[int64]chan struct{}
	holders  map[int64]string
	updates  map[int]time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a store expiring sessions after ttl of inactivity.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{
		sessions: make(map[int64]*Session),
		locks:    make(map[int64]chan struct{}),
		holders:  make(map[int64]string),
		updates:  make(map[int]time.Time),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, chatID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[chatID]
	if !ok || m.now().Sub(s.LastActivity) > m.ttl {
		delete(m.sessions, chatID)
		return New(chatID), nil
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := s.Clone()
	c.LastActivity = m.now()
	m.sessions[s.ChatID] = c
	return nil
}

func (m *MemoryStore) Reset(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, chatID)
	return nil
}

func (m *MemoryStore) AcquireLock(ctx context.Context, chatID int64, timeout time.Duration) (string, bool, error) {
	m.mu.Lock()
	lock, ok := m.locks[chatID]
	if !ok {
		lock = make(chan struct{}, 1)
		m.locks[chatID] = lock
	}
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case lock <- struct{}{}:
		token := uuid.NewString()
		m.mu.Lock()
		m.holders[chatID] = token
		m.mu.Unlock()
		return token, true, nil
	case <-timer.C:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func (m *MemoryStore) ReleaseLock(ctx context.Context, chatID int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[chatID]
	if !ok || token == "" || m.holders[chatID] != token {
		return nil
	}
	delete(m.holders, chatID)

	select {
	case <-lock:
	default:
	}
	return nil
}

func (m *MemoryStore) MarkUpdate(ctx context.Context, updateID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, seen := range m.updates {
		if now.Sub(seen) > updateWindow {
			delete(m.updates, id)
		}
	}

	if _, seen := m.updates[updateID]; seen {
		return false, nil
	}
	m.updates[updateID] = now
	return true, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
