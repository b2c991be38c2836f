package negotiation

import "context"

// Skill is an opaque unit of work with a name and an Execute operation. It
// does not access shared engine state directly; it receives a context
// value and returns a result. The five named skills below are the
// engine's extension seam (spec §4.6).
type Skill interface {
	Name() string
}

// FormulationContext is the input to the formulation skill.
type FormulationContext struct {
	RawIntent string
	UserID    string
	SceneID   string
}

// FormulationResult is the formulation skill's output contract.
type FormulationResult struct {
	FormulatedText string
	Degraded       bool
	DegradedReason string
}

// FormulationSkill rewrites a raw intent into a formulated demand.
type FormulationSkill interface {
	Skill
	Execute(ctx context.Context, fc FormulationContext) (FormulationResult, error)
}

// OfferContext is the input to the offer skill, run once per selected
// participant under the barrier.
type OfferContext struct {
	Identity       AgentIdentity
	Profile        map[string]interface{}
	FormulatedText string
	Adapter        Adapter
}

// OfferResult is the offer skill's output contract.
type OfferResult struct {
	Content string
}

// OfferSkill produces one participant's offer.
type OfferSkill interface {
	Skill
	Execute(ctx context.Context, oc OfferContext) (OfferResult, error)
}

// CenterContext is the input to the center skill, run once per coordinator
// round.
type CenterContext struct {
	Transcript         []ChatMessage
	ParticipantProfiles map[string]map[string]interface{}
	Offers             map[string]Offer
	Tools              []ToolDescriptor
	RoundNumber        int
	MaxRounds          int
}

// CenterResult is the center skill's output contract.
type CenterResult struct {
	ToolCalls []ToolCall
	Content   string
}

// CenterSkill synthesizes participant offers into tool calls or a final
// answer via the platform LLM.
type CenterSkill interface {
	Skill
	Execute(ctx context.Context, cc CenterContext) (CenterResult, error)
}

// SubNegotiationContext is the input to the sub_negotiation skill.
type SubNegotiationContext struct {
	Parent   *Session
	GapSpec  string
}

// SubNegotiationResult is the sub_negotiation skill's output contract. A
// nil result means the skill declined to spawn a child.
type SubNegotiationResult struct {
	SubDemandText string
	AgentIDs      []string
}

// SubNegotiationSkill proposes a child negotiation to address a gap.
type SubNegotiationSkill interface {
	Skill
	Execute(ctx context.Context, sc SubNegotiationContext) (*SubNegotiationResult, error)
}

// GapRecursionContext is the input to the gap_recursion skill.
type GapRecursionContext struct {
	PlanText       string
	Participants   []*AgentParticipant
	RecursionDepth int
}

// GapRecursionSkill proposes gaps suitable for sub-negotiation seeding.
type GapRecursionSkill interface {
	Skill
	Execute(ctx context.Context, gc GapRecursionContext) ([]string, error)
}
