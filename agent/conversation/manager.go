package conversation

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/internal/cache"
	"github.com/BaSui01/careerflow/types"
)

// SessionIndex mirrors the set of live session ids outside the process.
type SessionIndex interface {
	Add(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// Manager tracks live sessions by id.
type Manager struct {
	sessions map[string]*Session
	index    SessionIndex
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewManager creates a session manager. index may be nil.
func NewManager(index SessionIndex, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		index:    index,
		logger:   logger.With(zap.String("component", "session_manager")),
	}
}

// Add registers a live session. Ids must be unique among live sessions.
func (m *Manager) Add(ctx context.Context, s *Session) error {
	m.mu.Lock()
	if _, exists := m.sessions[s.ID()]; exists {
		m.mu.Unlock()
		return types.NewError(types.ErrInvalidRequest, "session already active: "+s.ID())
	}
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	if m.index != nil {
		if err := m.index.Add(ctx, s.ID()); err != nil {
			m.logger.Warn("session index add failed", zap.String("session_id", s.ID()), zap.Error(err))
		}
	}
	return nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove forgets a session. Removing an unknown id is a no-op.
func (m *Manager) Remove(ctx context.Context, id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.index != nil {
		if err := m.index.Remove(ctx, id); err != nil {
			m.logger.Warn("session index remove failed", zap.String("session_id", id), zap.Error(err))
		}
	}
}

// List returns live session ids, sorted. With an index it reports every
// instance's sessions.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	if m.index != nil {
		ids, err := m.index.List(ctx)
		if err == nil {
			sort.Strings(ids)
			return ids, nil
		}
		m.logger.Warn("session index list failed, using local sessions", zap.Error(err))
	}
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// Len returns the number of local live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CacheIndex stores live session ids in a Redis set.
type CacheIndex struct {
	cache *cache.Manager
	key   string
}

// DefaultIndexKey is the Redis set holding live session ids, relative to the cache key prefix.
const DefaultIndexKey = "sessions:active"

// NewCacheIndex creates a Redis-backed session index.
func NewCacheIndex(c *cache.Manager, key string) *CacheIndex {
	if key == "" {
		key = DefaultIndexKey
	}
	return &CacheIndex{cache: c, key: key}
}

func (c *CacheIndex) Add(ctx context.Context, id string) error {
	return c.cache.AddMembers(ctx, c.key, id)
}

func (c *CacheIndex) Remove(ctx context.Context, id string) error {
	return c.cache.RemoveMembers(ctx, c.key, id)
}

func (c *CacheIndex) List(ctx context.Context) ([]string, error) {
	return c.cache.Members(ctx, c.key)
}
