package conversation

import (
	"context"

	"github.com/BaSui01/careerflow/types"
)

// FirstTurnHook runs once before a participant's first normal turn.
// When handled is true the returned messages replace that turn.
type FirstTurnHook interface {
	BeforeFirstTurn(ctx context.Context, participantID string, history []types.Message) (msgs []types.Message, handled bool, err error)
}

// FirstTurnHookFunc adapts a function to FirstTurnHook.
type FirstTurnHookFunc func(ctx context.Context, participantID string, history []types.Message) ([]types.Message, bool, error)

func (f FirstTurnHookFunc) BeforeFirstTurn(ctx context.Context, participantID string, history []types.Message) ([]types.Message, bool, error) {
	return f(ctx, participantID, history)
}
