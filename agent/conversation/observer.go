package conversation

import (
	"context"
	"time"

	"github.com/BaSui01/careerflow/types"
)

// Observer is notified of session progress. Implementations must not block;
// persistence and metrics hang off this.
type Observer interface {
	OnMessage(ctx context.Context, sessionID string, msg types.Message)
	OnTurn(sessionID, participantID string, elapsed time.Duration, err error)
	OnEnd(ctx context.Context, result *Result)
}

// BaseObserver implements Observer with no-ops for embedding.
type BaseObserver struct{}

func (BaseObserver) OnMessage(context.Context, string, types.Message) {}
func (BaseObserver) OnTurn(string, string, time.Duration, error) {}
func (BaseObserver) OnEnd(context.Context, *Result) {}
