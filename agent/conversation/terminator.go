package conversation

import (
	"strings"

	"github.com/BaSui01/careerflow/types"
)

// Terminator decides whether the conversation has reached its end signal.
type Terminator interface {
	ShouldTerminate(history []types.Message) bool
}

// TerminatorFunc adapts a function to Terminator.
type TerminatorFunc func(history []types.Message) bool

func (f TerminatorFunc) ShouldTerminate(history []types.Message) bool { return f(history) }

// DefaultTerminationWords close the conversation when the gateway says them.
var DefaultTerminationWords = []string{"TERMINATE"}

// KeywordTerminator fires when the gateway's latest message contains a
// termination word after the human has spoken at least once.
type KeywordTerminator struct {
	Gateway string
	Proxy   string
	Words   []string
}

// NewKeywordTerminator creates a terminator for the given registry.
func NewKeywordTerminator(r *Registry, words ...string) *KeywordTerminator {
	if len(words) == 0 {
		words = DefaultTerminationWords
	}
	return &KeywordTerminator{Gateway: r.GatewayID(), Proxy: r.ProxyID(), Words: words}
}

func (t *KeywordTerminator) ShouldTerminate(history []types.Message) bool {
	if len(history) == 0 {
		return false
	}
	last := history[len(history)-1]
	if last.Source != t.Gateway || last.Kind != types.KindText {
		return false
	}
	humanSpoke := false
	for _, m := range history[:len(history)-1] {
		if NormalizeSource(m.Source, t.Proxy) == t.Proxy {
			humanSpoke = true
			break
		}
	}
	if !humanSpoke {
		return false
	}
	upper := strings.ToUpper(last.Content)
	for _, w := range t.Words {
		if w != "" && strings.Contains(upper, strings.ToUpper(w)) {
			return true
		}
	}
	return false
}
