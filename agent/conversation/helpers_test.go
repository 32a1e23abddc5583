package conversation

import (
	"context"
	"sync/atomic"

	"github.com/BaSui01/careerflow/types"
)

const (
	testGateway = "TriageAgent"
	testProxy   = "user_proxy"
)

var testSpecialists = []string{"ProfilerAgent", "SkillAgent", "LearningPlanAgent", "GlobalJobsAgent"}

// scriptedParticipant replies through a function and counts invocations.
type scriptedParticipant struct {
	id    string
	caps  Capabilities
	calls int64
	reply func(ctx context.Context, history []types.Message) ([]types.Message, error)
}

func (p *scriptedParticipant) ID() string                 { return p.id }
func (p *scriptedParticipant) Capabilities() Capabilities { return p.caps }

func (p *scriptedParticipant) Reply(ctx context.Context, history []types.Message) ([]types.Message, error) {
	atomic.AddInt64(&p.calls, 1)
	if p.reply != nil {
		return p.reply(ctx, history)
	}
	return []types.Message{types.NewTextMessage(p.id, p.id+" says hi.")}, nil
}

func (p *scriptedParticipant) Calls() int { return int(atomic.LoadInt64(&p.calls)) }

func newGateway(reply func(context.Context, []types.Message) ([]types.Message, error)) *scriptedParticipant {
	return &scriptedParticipant{id: testGateway, caps: Capabilities{CanAddressHuman: true}, reply: reply}
}

func newSpecialist(id string) *scriptedParticipant {
	return &scriptedParticipant{id: id, caps: Capabilities{CanUseTools: true}}
}

func newProxy(reply func(context.Context, []types.Message) ([]types.Message, error)) *scriptedParticipant {
	return &scriptedParticipant{id: testProxy, caps: Capabilities{IsHumanProxy: true}, reply: reply}
}

type testRoster struct {
	gateway     *scriptedParticipant
	specialists []*scriptedParticipant
	proxy       *scriptedParticipant
	registry    *Registry
}

func newTestRoster(gatewayReply, proxyReply func(context.Context, []types.Message) ([]types.Message, error)) *testRoster {
	r := &testRoster{gateway: newGateway(gatewayReply), proxy: newProxy(proxyReply)}
	specs := make([]Participant, 0, len(testSpecialists))
	for _, id := range testSpecialists {
		sp := newSpecialist(id)
		r.specialists = append(r.specialists, sp)
		specs = append(specs, sp)
	}
	reg, err := NewRegistry(r.gateway, specs, r.proxy)
	if err != nil {
		panic(err)
	}
	r.registry = reg
	return r
}

func (r *testRoster) specialistCalls() int {
	n := 0
	for _, s := range r.specialists {
		n += s.Calls()
	}
	return n
}

func textReply(source, content string) func(context.Context, []types.Message) ([]types.Message, error) {
	return func(context.Context, []types.Message) ([]types.Message, error) {
		return []types.Message{types.NewTextMessage(source, content)}, nil
	}
}

func msg(source, content string) types.Message {
	return types.NewTextMessage(source, content)
}
