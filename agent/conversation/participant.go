package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/careerflow/types"
)

// Capabilities describes what a participant may do in a session.
type Capabilities struct {
	CanAddressHuman bool `json:"can_address_human"`
	CanUseTools     bool `json:"can_use_tools"`
	IsHumanProxy    bool `json:"is_human_proxy"`
}

// Participant is one speaker of a group conversation.
// Reply receives the full history and returns zero or more new messages.
type Participant interface {
	ID() string
	Capabilities() Capabilities
	Reply(ctx context.Context, history []types.Message) ([]types.Message, error)
}

var (
	ErrNoGateway          = errors.New("conversation: gateway participant required")
	ErrNoSpecialists      = errors.New("conversation: at least one specialist required")
	ErrNoHumanProxy       = errors.New("conversation: human proxy required")
	ErrDuplicateID        = errors.New("conversation: duplicate participant id")
	ErrUnknownParticipant = errors.New("conversation: unknown participant")
)

// Registry is the fixed participant set of a session: one gateway, N specialists
// in declaration order, one human proxy.
type Registry struct {
	gateway     Participant
	specialists []Participant
	proxy       Participant
	byID        map[string]Participant
}

// NewRegistry validates and builds a participant registry.
func NewRegistry(gateway Participant, specialists []Participant, proxy Participant) (*Registry, error) {
	if gateway == nil {
		return nil, ErrNoGateway
	}
	if len(specialists) == 0 {
		return nil, ErrNoSpecialists
	}
	if proxy == nil {
		return nil, ErrNoHumanProxy
	}
	if !gateway.Capabilities().CanAddressHuman {
		return nil, fmt.Errorf("conversation: gateway %q must be able to address the human", gateway.ID())
	}
	if !proxy.Capabilities().IsHumanProxy {
		return nil, fmt.Errorf("conversation: participant %q is not a human proxy", proxy.ID())
	}

	r := &Registry{
		gateway:     gateway,
		specialists: append([]Participant(nil), specialists...),
		proxy:       proxy,
		byID:        make(map[string]Participant, len(specialists)+2),
	}
	all := append([]Participant{gateway}, specialists...)
	all = append(all, proxy)
	for _, p := range all {
		if p == nil {
			return nil, fmt.Errorf("conversation: nil participant")
		}
		if p.ID() == "" {
			return nil, fmt.Errorf("conversation: participant id must not be empty")
		}
		if _, dup := r.byID[p.ID()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, p.ID())
		}
		r.byID[p.ID()] = p
	}
	for _, s := range specialists {
		caps := s.Capabilities()
		if caps.CanAddressHuman || caps.IsHumanProxy {
			return nil, fmt.Errorf("conversation: specialist %q must not address the human", s.ID())
		}
	}
	return r, nil
}

// Get looks up a participant by id.
func (r *Registry) Get(id string) (Participant, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// MustGet is Get that returns a typed error for unknown ids.
func (r *Registry) MustGet(id string) (Participant, error) {
	if p, ok := r.byID[id]; ok {
		return p, nil
	}
	return nil, types.NewError(types.ErrUnknownParticipant, id).WithCause(ErrUnknownParticipant)
}

func (r *Registry) Gateway() Participant { return r.gateway }

func (r *Registry) HumanProxy() Participant { return r.proxy }

func (r *Registry) GatewayID() string { return r.gateway.ID() }

func (r *Registry) ProxyID() string { return r.proxy.ID() }

// SpecialistIDs returns specialist ids in declaration order.
func (r *Registry) SpecialistIDs() []string {
	ids := make([]string, len(r.specialists))
	for i, s := range r.specialists {
		ids[i] = s.ID()
	}
	return ids
}

// Participants returns gateway, specialists, proxy in that order.
func (r *Registry) Participants() []Participant {
	out := make([]Participant, 0, len(r.specialists)+2)
	out = append(out, r.gateway)
	out = append(out, r.specialists...)
	return append(out, r.proxy)
}

// Len returns the number of registered participants.
func (r *Registry) Len() int { return len(r.byID) }
