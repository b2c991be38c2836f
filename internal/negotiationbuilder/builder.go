// Package negotiationbuilder collapses the negotiation engine's many-argument
// constructor and per-run defaults into a fluent builder, mirroring the
// original implementation's EngineBuilder.
package negotiationbuilder

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/towow/negotiation/internal/events"
	"github.com/towow/negotiation/internal/negotiation"
	"github.com/towow/negotiation/internal/negotiation/negerr"
	"github.com/towow/negotiation/internal/observability"
	"github.com/towow/negotiation/internal/resonance"
	"github.com/towow/negotiation/pkg/vector"
)

// EngineBuilder assembles a negotiation.Engine plus the negotiation.RunDefaults
// to pass into StartNegotiation, with sensible defaults for everything but
// the encoder, registry, adapter and LLM client.
type EngineBuilder struct {
	// Engine-level (set once, shared by every negotiation this engine runs)
	encoder           negotiation.Encoder
	resonanceDetector resonance.Detector
	eventPusher       events.Pusher
	logger            *slog.Logger
	toolRegistry      *negotiation.ToolRegistry
	config            negotiation.Config
	toolHandlers      []negotiation.ToolHandler
	metrics           *observability.Metrics

	// Per-run defaults
	adapter             negotiation.Adapter
	llmClient           negotiation.PlatformLLMClient
	centerSkill         negotiation.CenterSkill
	formulationSkill    negotiation.FormulationSkill
	offerSkill          negotiation.OfferSkill
	subNegotiationSkill negotiation.SubNegotiationSkill
	gapRecursionSkill   negotiation.GapRecursionSkill
	agentVectors        map[string]vector.Vector
	kStar               int
	agentDisplayNames   map[string]string
	registerSession     func(*negotiation.Session)
	registry            negotiation.AgentRegistry
}

// New returns an EngineBuilder seeded with negotiation.DefaultConfig().
func New() *EngineBuilder {
	return &EngineBuilder{config: negotiation.DefaultConfig()}
}

func (b *EngineBuilder) WithConfig(cfg negotiation.Config) *EngineBuilder {
	b.config = cfg
	return b
}

func (b *EngineBuilder) WithEncoder(e negotiation.Encoder) *EngineBuilder {
	b.encoder = e
	return b
}

func (b *EngineBuilder) WithResonanceDetector(d resonance.Detector) *EngineBuilder {
	b.resonanceDetector = d
	return b
}

func (b *EngineBuilder) WithEventPusher(p events.Pusher) *EngineBuilder {
	b.eventPusher = p
	return b
}

func (b *EngineBuilder) WithLogger(l *slog.Logger) *EngineBuilder {
	b.logger = l
	return b
}

func (b *EngineBuilder) WithRegistry(r negotiation.AgentRegistry) *EngineBuilder {
	b.registry = r
	return b
}

func (b *EngineBuilder) WithToolHandler(h negotiation.ToolHandler) *EngineBuilder {
	b.toolHandlers = append(b.toolHandlers, h)
	return b
}

// WithMetrics wires a Prometheus collector set into the built engine. Left
// unset, the engine runs with instrumentation disabled.
func (b *EngineBuilder) WithMetrics(m *observability.Metrics) *EngineBuilder {
	b.metrics = m
	return b
}

func (b *EngineBuilder) WithAdapter(a negotiation.Adapter) *EngineBuilder {
	b.adapter = a
	return b
}

func (b *EngineBuilder) WithLLMClient(c negotiation.PlatformLLMClient) *EngineBuilder {
	b.llmClient = c
	return b
}

func (b *EngineBuilder) WithCenterSkill(s negotiation.CenterSkill) *EngineBuilder {
	b.centerSkill = s
	return b
}

func (b *EngineBuilder) WithFormulationSkill(s negotiation.FormulationSkill) *EngineBuilder {
	b.formulationSkill = s
	return b
}

func (b *EngineBuilder) WithOfferSkill(s negotiation.OfferSkill) *EngineBuilder {
	b.offerSkill = s
	return b
}

func (b *EngineBuilder) WithSubNegotiationSkill(s negotiation.SubNegotiationSkill) *EngineBuilder {
	b.subNegotiationSkill = s
	return b
}

func (b *EngineBuilder) WithGapRecursionSkill(s negotiation.GapRecursionSkill) *EngineBuilder {
	b.gapRecursionSkill = s
	return b
}

func (b *EngineBuilder) WithAgentVectors(v map[string]vector.Vector) *EngineBuilder {
	b.agentVectors = v
	return b
}

func (b *EngineBuilder) WithKStar(k int) *EngineBuilder {
	b.kStar = k
	return b
}

func (b *EngineBuilder) WithDisplayNames(names map[string]string) *EngineBuilder {
	b.agentDisplayNames = names
	return b
}

func (b *EngineBuilder) WithRegisterSession(fn func(*negotiation.Session)) *EngineBuilder {
	b.registerSession = fn
	return b
}

// Build validates required components and returns the assembled engine plus
// its per-run defaults. Only the encoder, registry, adapter, and LLM client
// are required; everything else has a usable default.
func (b *EngineBuilder) Build() (*negotiation.Engine, negotiation.RunDefaults, error) {
	if b.encoder == nil {
		return nil, negotiation.RunDefaults{}, negerr.NewConfigError("negotiationbuilder: WithEncoder is required", nil)
	}
	if b.resonanceDetector == nil {
		b.resonanceDetector = resonance.CosineDetector{}
	}
	if b.eventPusher == nil {
		b.eventPusher = events.NopPusher{}
	}
	if b.registry == nil {
		return nil, negotiation.RunDefaults{}, negerr.NewConfigError("negotiationbuilder: WithRegistry is required", nil)
	}
	if b.adapter == nil {
		return nil, negotiation.RunDefaults{}, negerr.NewConfigError("negotiationbuilder: WithAdapter is required", nil)
	}
	if b.llmClient == nil {
		return nil, negotiation.RunDefaults{}, negerr.NewConfigError("negotiationbuilder: WithLLMClient is required", nil)
	}

	engine := negotiation.NewEngine(b.config, b.encoder, b.resonanceDetector, b.registry, b.eventPusher, b.logger, b.toolRegistry)
	engine.Metrics = b.metrics
	for _, h := range b.toolHandlers {
		if err := engine.RegisterToolHandler(h); err != nil {
			return nil, negotiation.RunDefaults{}, err
		}
	}

	defaults := negotiation.RunDefaults{
		Adapter:             b.adapter,
		LLMClient:           b.llmClient,
		CenterSkill:         b.centerSkill,
		FormulationSkill:    b.formulationSkill,
		OfferSkill:          b.offerSkill,
		SubNegotiationSkill: b.subNegotiationSkill,
		GapRecursionSkill:   b.gapRecursionSkill,
		AgentVectors:        b.agentVectors,
		KStar:               b.kStar,
		AgentDisplayNames:   b.agentDisplayNames,
		RegisterSession:     b.registerSession,
	}

	return engine, defaults, nil
}

// NewNegotiationID generates a fresh negotiation id, matching the teacher's
// uuid-based id generation for correlated entities.
func NewNegotiationID() string {
	return uuid.NewString()
}
