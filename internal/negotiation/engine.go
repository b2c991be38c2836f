package negotiation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/towow/negotiation/internal/events"
	"github.com/towow/negotiation/internal/negotiation/negerr"
	"github.com/towow/negotiation/internal/observability"
	"github.com/towow/negotiation/internal/resonance"
	"github.com/towow/negotiation/pkg/vector"
)

// DiagnosticNoOffers and DiagnosticMaxRounds are the fixed marker strings
// used for the two degenerate-plan paths spec §9's open question resolves.
const (
	DiagnosticNoOffers  = "(no offers)"
	DiagnosticMaxRounds = "(max-rounds reached)"
)

// Config holds the engine-level tunables from spec §6's configuration
// table, plus the worker-pool size for the offer barrier.
type Config struct {
	MaxCenterRounds            int
	OfferTimeout               time.Duration
	FormulationTimeout         time.Duration
	ConfirmationTimeout        time.Duration
	DefaultKStar               int
	MaxRecursionDepth          int
	ToolTimeout                time.Duration
	BarrierWorkerLimit         int
}

// DefaultConfig returns the spec §6 defaults.
func DefaultConfig() Config {
	return Config{
		MaxCenterRounds:     5,
		OfferTimeout:        30 * time.Second,
		FormulationTimeout:  10 * time.Second,
		ConfirmationTimeout: 300 * time.Second,
		DefaultKStar:        5,
		MaxRecursionDepth:   1,
		ToolTimeout:         30 * time.Second,
		BarrierWorkerLimit:  8,
	}
}

// RunDefaults bundles the per-run collaborators and parameters passed to
// start_negotiation (spec §6 boundary API).
type RunDefaults struct {
	Adapter             Adapter
	LLMClient           PlatformLLMClient
	CenterSkill         CenterSkill
	FormulationSkill    FormulationSkill
	OfferSkill          OfferSkill
	SubNegotiationSkill SubNegotiationSkill
	GapRecursionSkill   GapRecursionSkill
	AgentVectors        map[string]vector.Vector
	KStar               int
	AgentDisplayNames   map[string]string
	RegisterSession     func(*Session)
	MaxRecursionDepth   int
	Scope               string
}

// Encoder is the subset of encoder.Encoder the engine depends on, declared
// locally so the engine needs only Encode from its encoder.
type Encoder interface {
	Encode(ctx context.Context, text string) (vector.Vector, error)
}

// sessionHandle tracks the mutable, concurrency-sensitive bits of one
// in-flight negotiation: the confirmation gate and the cancellation token.
type sessionHandle struct {
	confirmCh chan *string
	cancelCh  chan struct{}
	cancelled atomic.Bool
	awaiting  atomic.Bool
	closeOnce sync.Once
}

func newSessionHandle() *sessionHandle {
	return &sessionHandle{
		confirmCh: make(chan *string, 1),
		cancelCh:  make(chan struct{}),
	}
}

func (h *sessionHandle) requestCancel() {
	h.closeOnce.Do(func() {
		h.cancelled.Store(true)
		close(h.cancelCh)
	})
}

// Engine orchestrates the negotiation state machine end to end.
type Engine struct {
	Config Config

	Encoder            Encoder
	ResonanceDetector  resonance.Detector
	Registry           AgentRegistry
	EventSink          events.Pusher
	Logger             *slog.Logger

	// Metrics is nil by default; the builder wires it in when
	// negotiationbuilder.WithMetrics is called. Every call site guards on
	// nil so instrumentation stays optional.
	Metrics *observability.Metrics

	toolRegistry *ToolRegistry

	mu       sync.Mutex
	sessions map[string]*sessionHandle
}

// NewEngine constructs an Engine. toolRegistry may be nil, in which case a
// fresh registry with only the built-ins is used.
func NewEngine(cfg Config, encoder Encoder, detector resonance.Detector, registry AgentRegistry, sink events.Pusher, logger *slog.Logger, toolRegistry *ToolRegistry) *Engine {
	if toolRegistry == nil {
		toolRegistry = NewToolRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = events.NopPusher{}
	}
	return &Engine{
		Config:            cfg,
		Encoder:           encoder,
		ResonanceDetector: detector,
		Registry:          registry,
		EventSink:         sink,
		Logger:            logger,
		toolRegistry:      toolRegistry,
		sessions:          make(map[string]*sessionHandle),
	}
}

// RegisterToolHandler adds an extension tool handler. The output_plan name
// is forbidden (invariant 9).
func (e *Engine) RegisterToolHandler(h ToolHandler) error {
	return e.toolRegistry.Register(h)
}

// IsAwaitingConfirmation reports whether negotiationID is currently blocked
// in AWAITING_CONFIRMATION.
func (e *Engine) IsAwaitingConfirmation(negotiationID string) bool {
	e.mu.Lock()
	h, ok := e.sessions[negotiationID]
	e.mu.Unlock()
	return ok && h.awaiting.Load()
}

// ConfirmFormulation resolves the confirmation gate for negotiationID. A
// nil text keeps whatever formulated_text formulation produced; a non-nil
// text overrides it. Returns an EngineError if the session is not
// currently awaiting confirmation.
func (e *Engine) ConfirmFormulation(negotiationID string, text *string) error {
	e.mu.Lock()
	h, ok := e.sessions[negotiationID]
	e.mu.Unlock()
	if !ok || !h.awaiting.Load() {
		return negerr.NewEngineError(fmt.Sprintf("negotiation %s is not awaiting confirmation", negotiationID), nil)
	}
	select {
	case h.confirmCh <- text:
		return nil
	default:
		return negerr.NewEngineError(fmt.Sprintf("negotiation %s already confirmed", negotiationID), nil)
	}
}

// Cancel sets negotiationID's cancel token. The engine observes the token
// while the session waits at the confirmation gate or in the offer barrier,
// and then transitions it to CANCELLED. The formulation, matching and
// center-loop phases do not observe the token; a cancel issued during them
// takes effect only if the session later reaches the gate or the barrier.
func (e *Engine) Cancel(negotiationID string) error {
	e.mu.Lock()
	h, ok := e.sessions[negotiationID]
	e.mu.Unlock()
	if !ok {
		return negerr.NewEngineError(fmt.Sprintf("negotiation %s not found", negotiationID), nil)
	}
	h.requestCancel()
	return nil
}

func (e *Engine) register(session *Session) *sessionHandle {
	h := newSessionHandle()
	e.mu.Lock()
	e.sessions[session.NegotiationID] = h
	e.mu.Unlock()
	return h
}

func (e *Engine) unregister(negotiationID string) {
	e.mu.Lock()
	delete(e.sessions, negotiationID)
	e.mu.Unlock()
}

// StartNegotiation runs a session through its full lifecycle, phases 1-5
// (plus phase 6 recursively for any spawned sub-negotiations), and returns
// it once it reaches a terminal state.
func (e *Engine) StartNegotiation(ctx context.Context, session *Session, defaults RunDefaults) (*Session, error) {
	if session.State != StateCreated {
		return nil, negerr.NewEngineError("start_negotiation requires a CREATED session", nil)
	}
	if defaults.MaxRecursionDepth <= 0 {
		defaults.MaxRecursionDepth = e.Config.MaxRecursionDepth
	}
	if defaults.KStar <= 0 {
		defaults.KStar = e.Config.DefaultKStar
	}
	if defaults.Scope == "" {
		defaults.Scope = "all"
	}

	handle := e.register(session)
	defer e.unregister(session.NegotiationID)

	if defaults.RegisterSession != nil {
		defaults.RegisterSession(session)
	}

	if e.Metrics != nil {
		e.Metrics.ActiveNegotiations.Inc()
		defer e.Metrics.ActiveNegotiations.Dec()
	}

	emitter := events.NewEmitter(session.NegotiationID, e.EventSink)

	start := time.Now()
	cancelled := e.runFormulation(ctx, session, defaults, emitter)
	e.observePhase("formulation", start)
	if cancelled {
		session.State = StateCancelled
		e.recordTerminal(session)
		return session, nil
	}

	start = time.Now()
	completed, cancelled := e.runConfirmationGate(ctx, session, handle)
	e.observePhase("confirmation", start)
	if cancelled {
		session.State = StateCancelled
		e.recordTerminal(session)
		return session, nil
	}
	if completed {
		e.recordTerminal(session)
		return session, nil
	}

	start = time.Now()
	cancelled = e.runMatching(ctx, session, defaults, emitter)
	e.observePhase("resonance", start)
	if cancelled {
		session.State = StateCancelled
		e.recordTerminal(session)
		return session, nil
	}
	if session.State == StateCompleted || session.State == StateFailed {
		e.recordTerminal(session)
		return session, nil
	}

	start = time.Now()
	cancelled = e.runBarrier(ctx, session, defaults, emitter, handle)
	e.observePhase("offering", start)
	if cancelled {
		session.State = StateCancelled
		e.recordTerminal(session)
		return session, nil
	}

	if session.OffersReceived() == 0 {
		planText := DiagnosticNoOffers
		session.SetPlanOutput(planText)
		session.State = StateCompleted
		emitter.PlanReady(planText, session.CenterRounds, session.ParticipantIDs())
		e.recordTerminal(session)
		return session, nil
	}

	session.State = StateSynthesizing
	start = time.Now()
	e.runCenterLoop(ctx, session, defaults, emitter)
	e.observePhase("center", start)
	e.recordTerminal(session)

	return session, nil
}

// observePhase records how long one of the six engine phases took. Guards
// on a nil Metrics so instrumentation stays optional (e.g. in tests that
// build an Engine without a metrics collector).
func (e *Engine) observePhase(phase string, start time.Time) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

func (e *Engine) recordBarrierOutcome(outcome string) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.BarrierOutcome.WithLabelValues(outcome).Inc()
}

func (e *Engine) recordToolDispatch(toolName, status string) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.ToolDispatchCounter.WithLabelValues(toolName, status).Inc()
}

// recordTerminal accounts a session's final state and recursion depth once
// it reaches one of the states in spec §3's terminal set.
func (e *Engine) recordTerminal(session *Session) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.NegotiationsTotal.WithLabelValues(string(session.State)).Inc()
	e.Metrics.CenterRounds.Observe(float64(session.CenterRounds))
	if session.RecursionDepth > 0 {
		e.Metrics.SubNegotiationDepth.Observe(float64(session.RecursionDepth))
	}
}
