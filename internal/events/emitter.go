package events

import "sync/atomic"

// Emitter builds and pushes events for one negotiation, counting the events
// it has pushed; the count is not attached to the events. The coordinator
// owns the Emitter for a
// negotiation and is the only caller — workers never push events directly
// (spec §5 ordering guarantee).
type Emitter struct {
	negotiationID string
	sink          Pusher
	sequence      atomic.Int64
}

// NewEmitter returns an Emitter that pushes to sink on behalf of
// negotiationID.
func NewEmitter(negotiationID string, sink Pusher) *Emitter {
	if sink == nil {
		sink = NopPusher{}
	}
	return &Emitter{negotiationID: negotiationID, sink: sink}
}

func (e *Emitter) emit(t Type, data map[string]interface{}) {
	e.sequence.Add(1)
	e.sink.Push(newEvent(e.negotiationID, t, data))
}

// FormulationReady emits formulation.ready.
func (e *Emitter) FormulationReady(rawIntent, formulatedText string, degraded bool, degradedReason string) {
	e.emit(TypeFormulationReady, map[string]interface{}{
		"raw_intent":      rawIntent,
		"formulated_text": formulatedText,
		"degraded":        degraded,
		"degraded_reason": degradedReason,
	})
}

// ResonanceActivated emits resonance.activated.
func (e *Emitter) ResonanceActivated(agents []AgentScore) {
	e.emit(TypeResonanceActivated, map[string]interface{}{
		"activated_count": len(agents),
		"agents":          agents,
	})
}

// OfferReceived emits offer.received.
func (e *Emitter) OfferReceived(agentID, displayName, content string) {
	e.emit(TypeOfferReceived, map[string]interface{}{
		"agent_id":     agentID,
		"display_name": displayName,
		"content":      content,
	})
}

// BarrierComplete emits barrier.complete.
func (e *Emitter) BarrierComplete(total, received, exited int) {
	e.emit(TypeBarrierComplete, map[string]interface{}{
		"total_participants": total,
		"offers_received":    received,
		"exited_count":       exited,
	})
}

// CenterToolCall emits center.tool_call.
func (e *Emitter) CenterToolCall(toolName string, arguments map[string]interface{}, round int) {
	e.emit(TypeCenterToolCall, map[string]interface{}{
		"tool_name": toolName,
		"arguments": arguments,
		"round_number": round,
	})
}

// PlanReady emits plan.ready. The engine emits exactly one of these for a
// session that ends COMPLETED or FAILED, except when the confirmation window
// elapses; a cancelled session emits none.
func (e *Emitter) PlanReady(planText string, centerRounds int, participantIDs []string) {
	e.emit(TypePlanReady, map[string]interface{}{
		"plan_text":       planText,
		"center_rounds":   centerRounds,
		"participant_ids": participantIDs,
	})
}

// SubNegotiationStarted emits sub_negotiation.started.
func (e *Emitter) SubNegotiationStarted(subNegotiationID, subDemandText string) {
	e.emit(TypeSubNegotiationStarted, map[string]interface{}{
		"sub_negotiation_id": subNegotiationID,
		"sub_demand_text":    subDemandText,
	})
}
