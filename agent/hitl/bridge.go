package hitl

import (
	"context"
	"errors"
	"sync"
)

// ErrBridgeClosed 桥已关闭，不再接收也不再产出输入
var ErrBridgeClosed = errors.New("hitl: input bridge closed")

// InputBridge 是连接入站读取与 human proxy 的 FIFO 交接队列。
// Submit 永不阻塞；Fetch 阻塞到有输入、ctx 取消或桥关闭。
// 读出顺序等于写入顺序，不丢失也不重复。
type InputBridge struct {
	mu     sync.Mutex
	items  []string
	closed bool
	notify chan struct{}
	done   chan struct{}
}

// NewInputBridge 创建交接队列
func NewInputBridge() *InputBridge {
	return &InputBridge{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Submit 追加一条用户输入
func (b *InputBridge) Submit(text string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	b.items = append(b.items, text)
	b.mu.Unlock()

	b.signal()
	return nil
}

// Fetch 取出最早的一条输入。关闭前已提交的输入仍会被取出。
func (b *InputBridge) Fetch(ctx context.Context) (string, error) {
	for {
		b.mu.Lock()
		if len(b.items) > 0 {
			text := b.items[0]
			b.items[0] = ""
			b.items = b.items[1:]
			more := len(b.items) > 0
			b.mu.Unlock()
			if more {
				b.signal()
			}
			return text, nil
		}
		if b.closed {
			b.mu.Unlock()
			return "", ErrBridgeClosed
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-b.notify:
		case <-b.done:
		}
	}
}

// Len 返回排队中的输入数
func (b *InputBridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Close 关闭交接队列并唤醒所有等待者。可重复调用。
func (b *InputBridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

func (b *InputBridge) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
