// Package negotiation implements the negotiation engine: the session state
// machine, the resonance-matching stage, the parallel offer-collection
// barrier, the coordinator tool-dispatch loop, and recursive
// sub-negotiation.
package negotiation

import (
	"time"

	"github.com/towow/negotiation/pkg/vector"
)

// State is one of the session's finite state machine states.
type State string

const (
	StateCreated               State = "CREATED"
	StateFormulating           State = "FORMULATING"
	StateFormulated            State = "FORMULATED"
	StateAwaitingConfirmation  State = "AWAITING_CONFIRMATION"
	StateMatching              State = "MATCHING"
	StateOffering              State = "OFFERING"
	StateSynthesizing          State = "SYNTHESIZING"
	StateCompleted             State = "COMPLETED"
	StateCancelled             State = "CANCELLED"
	StateFailed                State = "FAILED"
)

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// permittedSuccessors encodes the state machine's edges (spec §4.9).
// Cancel is a side-exit available from every non-terminal state and is
// checked separately in CanTransition rather than listed per-state here.
var permittedSuccessors = map[State][]State{
	StateCreated:              {StateFormulating, StateAwaitingConfirmation},
	StateFormulating:          {StateFormulated, StateAwaitingConfirmation},
	StateFormulated:           {StateAwaitingConfirmation},
	StateAwaitingConfirmation: {StateMatching, StateCompleted},
	StateMatching:             {StateOffering},
	StateOffering:             {StateSynthesizing, StateCompleted},
	StateSynthesizing:         {StateCompleted},
}

// CanTransition reports whether to is a permitted successor of from, or a
// cancellation/failure side-exit (available from any non-terminal state).
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateCancelled || to == StateFailed {
		return true
	}
	for _, s := range permittedSuccessors[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParticipantState is a participant's per-session lifecycle state.
type ParticipantState string

const (
	ParticipantInvited ParticipantState = "INVITED"
	ParticipantActive  ParticipantState = "ACTIVE"
	ParticipantReplied ParticipantState = "REPLIED"
	ParticipantExited  ParticipantState = "EXITED"
	ParticipantFailed  ParticipantState = "FAILED"
)

// Terminal reports whether s admits no further per-session transitions.
func (s ParticipantState) Terminal() bool {
	switch s {
	case ParticipantReplied, ParticipantExited, ParticipantFailed:
		return true
	default:
		return false
	}
}

// AgentIdentity stably identifies an agent across negotiations.
type AgentIdentity struct {
	AgentID     string
	DisplayName string
	SceneTags   map[string]struct{}
	Source      string // which adapter owns this agent
}

// DemandSnapshot captures the user's raw and (optionally) formulated intent.
// Immutable except that FormulatedText is set exactly once, at the
// formulation -> confirmation boundary.
type DemandSnapshot struct {
	RawIntent      string
	FormulatedText string
	UserID         string
	SceneID        string
}

// SetFormulatedText writes FormulatedText. The engine only calls this while
// the session is in FORMULATING or AWAITING_CONFIRMATION (invariant 7); the
// window is enforced by the engine's control flow, not by this type.
func (d *DemandSnapshot) SetFormulatedText(text string) {
	d.FormulatedText = text
}

// Offer is a participant's structured response to the formulated demand.
// Immutable once stored.
type Offer struct {
	AgentID   string
	Content   string
	CreatedAt time.Time
}

// AgentParticipant is one agent's membership in a single negotiation.
// Owned by exactly one session.
type AgentParticipant struct {
	Identity       AgentIdentity
	State          ParticipantState
	Offer          *Offer
	ResonanceScore float64
	LastError      error
}

// TraceEntry is an append-only diagnostic record of one engine step.
type TraceEntry struct {
	Step      string
	Input     string
	Output    string
	Timestamp time.Time
}

// ToolCallRecord records one dispatched tool call for the center transcript.
type ToolCallRecord struct {
	ToolName  string
	Arguments map[string]interface{}
	Result    map[string]interface{}
	Round     int
}

// Session is one invocation of the engine against a demand.
type Session struct {
	NegotiationID      string
	Demand             DemandSnapshot
	State              State
	Participants       []*AgentParticipant
	CenterRounds       int
	PlanOutput         *string
	Trace              []TraceEntry
	MaxCenterRounds    int
	ParentNegotiationID string
	RecursionDepth     int
	ToolHistory        []ToolCallRecord

	demandVector vector.Vector
}

// NewSession creates a CREATED session for the given demand, with
// maxCenterRounds as supplied by the caller. RecursionDepth starts at 0;
// callers that create child sessions set it and ParentNegotiationID.
func NewSession(negotiationID, rawIntent, userID, sceneID string, maxCenterRounds int) *Session {
	return &Session{
		NegotiationID:   negotiationID,
		Demand:          DemandSnapshot{RawIntent: rawIntent, UserID: userID, SceneID: sceneID},
		State:           StateCreated,
		MaxCenterRounds: maxCenterRounds,
	}
}

// AddTrace appends a TraceEntry.
func (s *Session) AddTrace(step, input, output string) {
	s.Trace = append(s.Trace, TraceEntry{Step: step, Input: input, Output: output, Timestamp: time.Now()})
}

// ParticipantByAgentID returns the participant with the given agent id, or
// nil if not present (invariant 4: unique by agent_id, so at most one
// match).
func (s *Session) ParticipantByAgentID(agentID string) *AgentParticipant {
	for _, p := range s.Participants {
		if p.Identity.AgentID == agentID {
			return p
		}
	}
	return nil
}

// BarrierSatisfied implements invariant 6: true iff every participant has
// reached a terminal per-session state. Vacuously true with zero
// participants.
func (s *Session) BarrierSatisfied() bool {
	for _, p := range s.Participants {
		if !p.State.Terminal() {
			return false
		}
	}
	return true
}

// OffersReceived counts REPLIED participants.
func (s *Session) OffersReceived() int {
	n := 0
	for _, p := range s.Participants {
		if p.State == ParticipantReplied {
			n++
		}
	}
	return n
}

// ExitedCount counts EXITED or FAILED participants.
func (s *Session) ExitedCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.State == ParticipantExited || p.State == ParticipantFailed {
			n++
		}
	}
	return n
}

// ParticipantIDs returns the ids of every participant, in session order
// (resonance rank order, per spec §5 ordering guarantee).
func (s *Session) ParticipantIDs() []string {
	ids := make([]string, len(s.Participants))
	for i, p := range s.Participants {
		ids[i] = p.Identity.AgentID
	}
	return ids
}

// SetPlanOutput sets PlanOutput, overwriting any earlier value; the engine
// calls it at most once per session (invariant 2: non-empty iff
// state == COMPLETED). Callers must only reach this on a path that also
// sets state to COMPLETED in the same step; a FAILED session keeps
// PlanOutput nil and carries its diagnostic text in the trace and the
// plan.ready event payload instead.
func (s *Session) SetPlanOutput(text string) {
	s.PlanOutput = &text
}
