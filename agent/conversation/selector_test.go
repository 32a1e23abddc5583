package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/BaSui01/careerflow/types"
)

func newTestSelector() *HumanInTheLoopSelector {
	return NewHumanInTheLoopSelector(testGateway, testSpecialists, testProxy)
}

func TestSelector_Scenarios(t *testing.T) {
	abc := NewHumanInTheLoopSelector("G", []string{"A", "B", "C"}, "H")

	tests := []struct {
		name    string
		sel     *HumanInTheLoopSelector
		history []types.Message
		want    string
	}{
		{
			name: "empty history opens with gateway",
			sel:  newTestSelector(),
			want: testGateway,
		},
		{
			name:    "only human spoke opens with gateway",
			sel:     newTestSelector(),
			history: []types.Message{msg(testProxy, "I need help with my career.")},
			want:    testGateway,
		},
		{
			name:    "raw user tag counts as human for opening",
			sel:     newTestSelector(),
			history: []types.Message{msg("user", "hi"), msg("human", "anyone there")},
			want:    testGateway,
		},
		{
			name:    "gateway question routes to human",
			sel:     newTestSelector(),
			history: []types.Message{msg(testGateway, "What are your career goals?")},
			want:    testProxy,
		},
		{
			name:    "question with trailing whitespace routes to human",
			sel:     newTestSelector(),
			history: []types.Message{msg(testGateway, "Which country?  \n")},
			want:    testProxy,
		},
		{
			name:    "request phrase routes to human case-insensitively",
			sel:     newTestSelector(),
			history: []types.Message{msg("SkillAgent", "Please Provide your current skills.")},
			want:    testProxy,
		},
		{
			name:    "can you routes to human",
			sel:     newTestSelector(),
			history: []types.Message{msg("GlobalJobsAgent", "TriageAgent, can you ask for their location.")},
			want:    testProxy,
		},
		{
			name:    "user input phrase routes to human",
			sel:     newTestSelector(),
			history: []types.Message{msg(testGateway, "Waiting for user input.")},
			want:    testProxy,
		},
		{
			name:    "specialist rotation after A is B",
			sel:     abc,
			history: []types.Message{msg("H", "..."), msg("A", "Findings X.")},
			want:    "B",
		},
		{
			name:    "specialist rotation wraps around",
			sel:     abc,
			history: []types.Message{msg("H", "..."), msg("A", "x."), msg("B", "y."), msg("C", "z.")},
			want:    "A",
		},
		{
			name:    "after gateway goes to first specialist",
			sel:     abc,
			history: []types.Message{msg("H", "help"), msg("G", "Team, please look at this.")},
			want:    "A",
		},
		{
			name:    "human answer resumes rotation from last non-human",
			sel:     abc,
			history: []types.Message{msg("B", "What is your degree?"), msg("H", "Computer science")},
			want:    "C",
		},
		{
			name:    "unknown speaker fails closed to gateway",
			sel:     abc,
			history: []types.Message{msg("H", "hi"), msg("Mallory", "done.")},
			want:    "G",
		},
		{
			name: "tool messages count as the specialist speaking",
			sel:  abc,
			history: []types.Message{
				msg("H", "hi"),
				types.NewToolResultMessage("B", types.ToolCall{ID: "1", Name: "search"}, "results."),
			},
			want: "C",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sel.Select(tt.history))
		})
	}
}

func TestSelector_CustomPhrasesAndAliases(t *testing.T) {
	sel := NewHumanInTheLoopSelector("G", []string{"A"}, "H",
		WithHumanAliases("customer"),
		WithInputPhrases("Over to you"))

	assert.Equal(t, "G", sel.Select([]types.Message{msg("customer", "hello")}))
	assert.Equal(t, "H", sel.Select([]types.Message{msg("A", "over to you, friend.")}))
	assert.Equal(t, "A", sel.Select([]types.Message{msg("A", "can you check.")}), "default phrases replaced")
}

func TestSelectorForRegistry(t *testing.T) {
	r := newTestRoster(nil, nil)
	sel := SelectorForRegistry(r.registry)
	assert.Equal(t, "SkillAgent", sel.Select([]types.Message{msg(testProxy, "hi"), msg("ProfilerAgent", "ok.")}))
	assert.Equal(t, "ProfilerAgent", sel.Select([]types.Message{msg(testProxy, "hi"), msg("GlobalJobsAgent", "ok.")}))
}

// ---------------------------------------------------------------------------
// 属性测试
// ---------------------------------------------------------------------------

var allSources = append([]string{testGateway, testProxy, "user", "human"}, testSpecialists...)

func genContent() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		"Findings noted.",
		"Here is the plan.",
		"What is your goal?",
		"please provide details",
		"Can you share more",
		"waiting on user input",
		"ok",
		"",
	})
}

func genHistory() *rapid.Generator[[]types.Message] {
	return rapid.Custom(func(t *rapid.T) []types.Message {
		n := rapid.IntRange(0, 12).Draw(t, "len")
		out := make([]types.Message, n)
		for i := range out {
			out[i] = msg(rapid.SampledFrom(allSources).Draw(t, "source"), genContent().Draw(t, "content"))
		}
		return out
	})
}

func TestProperty_SelectorIsStateless(t *testing.T) {
	sel := newTestSelector()
	rapid.Check(t, func(t *rapid.T) {
		h := genHistory().Draw(t, "history")
		first := sel.Select(h)
		// 中间穿插其他历史，结果不受影响
		_ = sel.Select(genHistory().Draw(t, "other"))
		assert.Equal(t, first, sel.Select(h))
	})
}

func TestProperty_OpeningRule(t *testing.T) {
	sel := newTestSelector()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(t, "n")
		h := make([]types.Message, n)
		for i := range h {
			src := rapid.SampledFrom([]string{testProxy, "user", "human"}).Draw(t, "source")
			h[i] = msg(src, genContent().Draw(t, "content"))
		}
		assert.Equal(t, testGateway, sel.Select(h))
	})
}

func TestProperty_QuestionRoutesToHuman(t *testing.T) {
	sel := newTestSelector()
	rapid.Check(t, func(t *rapid.T) {
		h := genHistory().Draw(t, "history")
		src := rapid.SampledFrom(append([]string{testGateway}, testSpecialists...)).Draw(t, "source")
		text := rapid.StringMatching(`[a-zA-Z ]{0,20}`).Draw(t, "text") + "?"
		h = append(h, msg(src, text))
		assert.Equal(t, testProxy, sel.Select(h))
	})
}

func TestProperty_HumanNormalization(t *testing.T) {
	sel := newTestSelector()
	rapid.Check(t, func(t *rapid.T) {
		h := genHistory().Draw(t, "history")
		normalized := make([]types.Message, len(h))
		for i, m := range h {
			if m.Source == "user" || m.Source == "human" {
				m.Source = testProxy
			}
			normalized[i] = m
		}
		assert.Equal(t, sel.Select(normalized), sel.Select(h))
	})
}

func TestProperty_RoundRobinFairness(t *testing.T) {
	sel := newTestSelector()
	rapid.Check(t, func(t *rapid.T) {
		k := rapid.IntRange(1, 10).Draw(t, "k")
		h := []types.Message{msg(testProxy, "help me")}
		for i := 0; i < k; i++ {
			idx := rapid.IntRange(0, len(testSpecialists)-1).Draw(t, "idx")
			h = append(h, msg(testSpecialists[idx], "Noted."))
		}
		last := h[len(h)-1].Source
		pos := 0
		for i, id := range testSpecialists {
			if id == last {
				pos = i
			}
		}
		assert.Equal(t, testSpecialists[(pos+1)%len(testSpecialists)], sel.Select(h))
	})
}

func TestProperty_SelectionIsAlwaysRegistered(t *testing.T) {
	sel := newTestSelector()
	valid := map[string]bool{testGateway: true, testProxy: true}
	for _, s := range testSpecialists {
		valid[s] = true
	}
	rapid.Check(t, func(t *rapid.T) {
		assert.True(t, valid[sel.Select(genHistory().Draw(t, "history"))])
	})
}
