package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/careerflow/agent/conversation"
	"github.com/BaSui01/careerflow/types"
)

// SessionObserver 把会话进度转成 Prometheus 指标.
type SessionObserver struct {
	conversation.BaseObserver
	c       *Collector
	started sync.Map
}

// NewSessionObserver 创建会话观察者.
func NewSessionObserver(c *Collector) *SessionObserver {
	return &SessionObserver{c: c}
}

func (o *SessionObserver) open(sessionID string) {
	if _, loaded := o.started.LoadOrStore(sessionID, struct{}{}); !loaded {
		o.c.RecordSessionStart()
	}
}

func (o *SessionObserver) OnMessage(_ context.Context, sessionID string, msg types.Message) {
	o.open(sessionID)
	o.c.RecordMessage(string(msg.Kind))
}

func (o *SessionObserver) OnTurn(sessionID, participantID string, elapsed time.Duration, err error) {
	o.open(sessionID)
	o.c.RecordTurn(participantID, elapsed, err)
}

func (o *SessionObserver) OnEnd(_ context.Context, result *conversation.Result) {
	if result == nil {
		return
	}
	// 一轮未跑就结束的会话也计入 started，保证 gauge 对称
	o.open(result.SessionID)
	o.started.Delete(result.SessionID)
	o.c.RecordSessionEnd(string(result.TerminationReason), result.Turns, result.EndTime.Sub(result.StartTime))
}

// CountingSink 在事件成功下发后按类型计数.
func (c *Collector) CountingSink(next conversation.EventSink) conversation.EventSink {
	return conversation.SinkFunc(func(ctx context.Context, ev conversation.Event) error {
		if err := next.Emit(ctx, ev); err != nil {
			return err
		}
		c.RecordEvent(string(ev.Type))
		return nil
	})
}
