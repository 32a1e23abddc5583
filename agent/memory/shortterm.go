package memory

import (
	"sync"

	"github.com/BaSui01/careerflow/types"
)

// ContextSource 是 UpdateContext 插入消息的来源。
const ContextSource = "system"

// ShortTerm 是有界的 FIFO 消息缓冲。容量 <= 0 表示不限。
type ShortTerm struct {
	mu       sync.RWMutex
	items    []types.Message
	capacity int
}

// NewShortTerm 创建短期记忆。
func NewShortTerm(capacity int) *ShortTerm {
	return &ShortTerm{capacity: capacity}
}

// Add 依次追加消息，超出容量时淘汰最旧的条目。
func (s *ShortTerm) Add(entries ...types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		s.items = append(s.items, e.Clone())
		s.evictLocked()
	}
}

func (s *ShortTerm) evictLocked() {
	if s.capacity <= 0 {
		return
	}
	if over := len(s.items) - s.capacity; over > 0 {
		// 复制到新切片，避免底层数组无限增长
		s.items = append([]types.Message(nil), s.items[over:]...)
	}
}

// Query 返回最近的 topK 条消息；topK <= 0 时返回全部。
func (s *ShortTerm) Query(topK int) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if topK > 0 && topK < len(s.items) {
		start = len(s.items) - topK
	}
	out := make([]types.Message, 0, len(s.items)-start)
	for _, m := range s.items[start:] {
		out = append(out, m.Clone())
	}
	return out
}

// Clear 清空全部条目。
func (s *ShortTerm) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}

// UpdateContext 在队首插入一条 system 消息。
// 超出容量时淘汰其后最旧的条目，新插入的上下文总会保留。
func (s *ShortTerm) UpdateContext(text string) {
	ctxMsg := types.NewTextMessage(ContextSource, text)

	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]types.Message, 0, len(s.items)+1)
	items = append(items, ctxMsg)
	items = append(items, s.items...)
	if s.capacity > 0 && len(items) > s.capacity {
		// 丢弃紧随上下文之后的最旧条目
		over := len(items) - s.capacity
		items = append(items[:1], items[1+over:]...)
	}
	s.items = items
}

// Size 返回当前条目数。
func (s *ShortTerm) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Capacity 返回容量，0 表示不限。
func (s *ShortTerm) Capacity() int {
	if s.capacity < 0 {
		return 0
	}
	return s.capacity
}
