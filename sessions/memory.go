package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in process. Sessions idle longer than ttl are
// dropped lazily on access.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string]*Session
	ttl   time.Duration
	nowFn func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{data: make(map[string]*Session), ttl: ttl, nowFn: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, creds Credentials) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFn()
	s := &Session{
		ID:          uuid.NewString(),
		Credentials: Credentials{}.Merge(creds),
		Status:      StatusIdle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.data[s.ID] = s
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	cp := *s
	if err := fn(&cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = m.nowFn()
	m.data[id] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

// lookup must be called with mu held.
func (m *MemoryStore) lookup(id string) (*Session, error) {
	s, ok := m.data[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.ttl > 0 && m.nowFn().Sub(s.UpdatedAt) > m.ttl {
		delete(m.data, id)
		return nil, ErrSessionNotFound
	}
	return s, nil
}
