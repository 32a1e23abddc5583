package conversation

import (
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/types"
)

// Selector picks the next speaker from the history.
type Selector interface {
	Select(history []types.Message) string
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(history []types.Message) string

func (f SelectorFunc) Select(history []types.Message) string { return f(history) }

// DefaultHumanAliases are raw source tags that stand for the human.
var DefaultHumanAliases = []string{"user", "human"}

// DefaultInputPhrases mark a message as a request for human input.
var DefaultInputPhrases = []string{"please provide", "can you", "user input"}

// HumanInTheLoopSelector opens with the gateway, hands the floor to the human
// whenever the last message asks for input, and otherwise rotates through the
// specialists in declaration order.
//
// It keeps no turn state: the rotation is recomputed from the history on every
// call, so any history prefix can be replayed.
type HumanInTheLoopSelector struct {
	gateway      string
	proxy        string
	specialists  []string
	position     map[string]int
	aliases      map[string]struct{}
	inputPhrases []string
	logger       *zap.Logger
}

// SelectorOption customizes a HumanInTheLoopSelector.
type SelectorOption func(*HumanInTheLoopSelector)

// WithHumanAliases replaces the raw source tags treated as the human.
func WithHumanAliases(aliases ...string) SelectorOption {
	return func(s *HumanInTheLoopSelector) {
		s.aliases = make(map[string]struct{}, len(aliases))
		for _, a := range aliases {
			s.aliases[a] = struct{}{}
		}
	}
}

// WithInputPhrases replaces the phrases that route to the human.
func WithInputPhrases(phrases ...string) SelectorOption {
	return func(s *HumanInTheLoopSelector) {
		s.inputPhrases = s.inputPhrases[:0]
		for _, p := range phrases {
			s.inputPhrases = append(s.inputPhrases, strings.ToLower(p))
		}
	}
}

// WithSelectorLogger sets the logger used to trace prior speakers.
func WithSelectorLogger(logger *zap.Logger) SelectorOption {
	return func(s *HumanInTheLoopSelector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHumanInTheLoopSelector builds a selector over explicit participant ids.
func NewHumanInTheLoopSelector(gateway string, specialists []string, proxy string, opts ...SelectorOption) *HumanInTheLoopSelector {
	s := &HumanInTheLoopSelector{
		gateway:     gateway,
		proxy:       proxy,
		specialists: append([]string(nil), specialists...),
		position:    make(map[string]int, len(specialists)),
		logger:      zap.NewNop(),
	}
	for i, id := range s.specialists {
		s.position[id] = i
	}
	WithHumanAliases(DefaultHumanAliases...)(s)
	WithInputPhrases(DefaultInputPhrases...)(s)
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "speaker_selector"))
	return s
}

// SelectorForRegistry builds a selector from a registry's declaration order.
func SelectorForRegistry(r *Registry, opts ...SelectorOption) *HumanInTheLoopSelector {
	return NewHumanInTheLoopSelector(r.GatewayID(), r.SpecialistIDs(), r.ProxyID(), opts...)
}

// Select implements Selector.
func (s *HumanInTheLoopSelector) Select(history []types.Message) string {
	if len(history) == 0 || s.onlyHumanSpoke(history) {
		return s.gateway
	}

	last := history[len(history)-1]
	if src := s.normalize(last.Source); src != s.proxy {
		s.logger.Debug("prior speaker", zap.String("agent", src), zap.String("content", last.Content))
	}

	if s.RequestsHumanInput(last.Content) {
		return s.proxy
	}

	for i := len(history) - 1; i >= 0; i-- {
		src := s.normalize(history[i].Source)
		if src == s.proxy {
			continue
		}
		if pos, ok := s.position[src]; ok {
			return s.specialists[(pos+1)%len(s.specialists)]
		}
		if src == s.gateway && len(s.specialists) > 0 {
			return s.specialists[0]
		}
		// 未知发言者：回退到 gateway
		s.logger.Warn("unknown participant in history, falling back to gateway",
			zap.String("source", history[i].Source))
		return s.gateway
	}
	return s.gateway
}

// RequestsHumanInput reports whether text hands the floor to the human.
func (s *HumanInTheLoopSelector) RequestsHumanInput(text string) bool {
	if strings.HasSuffix(strings.TrimSpace(text), "?") {
		return true
	}
	lower := strings.ToLower(text)
	for _, p := range s.inputPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// normalize maps raw human tags to the proxy id.
func (s *HumanInTheLoopSelector) normalize(source string) string {
	if _, ok := s.aliases[source]; ok {
		return s.proxy
	}
	return source
}

func (s *HumanInTheLoopSelector) onlyHumanSpoke(history []types.Message) bool {
	for _, m := range history {
		if s.normalize(m.Source) != s.proxy {
			return false
		}
	}
	return true
}

// NormalizeSource maps a raw human tag to proxy, leaving other ids unchanged.
func NormalizeSource(source, proxy string) string {
	for _, a := range DefaultHumanAliases {
		if source == a {
			return proxy
		}
	}
	return source
}
