package negotiation

import (
	"context"
	"time"

	"github.com/towow/negotiation/internal/events"
	"github.com/towow/negotiation/pkg/vector"
)

// runFormulation implements phase 1. The returned flag reports cancellation;
// this phase does not observe the cancel token, so it is always false.
func (e *Engine) runFormulation(ctx context.Context, session *Session, defaults RunDefaults, emitter *events.Emitter) bool {
	raw := session.Demand.RawIntent

	if defaults.FormulationSkill == nil {
		session.Demand.SetFormulatedText(raw)
		session.State = StateAwaitingConfirmation
		emitter.FormulationReady(raw, raw, false, "")
		return false
	}

	session.State = StateFormulating
	fctx, cancel := context.WithTimeout(ctx, e.Config.FormulationTimeout)
	result, err := defaults.FormulationSkill.Execute(fctx, FormulationContext{
		RawIntent: raw,
		UserID:    session.Demand.UserID,
		SceneID:   session.Demand.SceneID,
	})
	cancel()

	if err != nil || fctx.Err() == context.DeadlineExceeded {
		reason := ""
		if err != nil {
			reason = err.Error()
		} else {
			reason = "formulation timed out"
		}
		session.Demand.SetFormulatedText(raw)
		session.AddTrace("formulation", raw, "degraded: "+reason)
		session.State = StateAwaitingConfirmation
		emitter.FormulationReady(raw, raw, true, reason)
		return false
	}

	session.Demand.SetFormulatedText(result.FormulatedText)
	session.State = StateFormulated
	session.State = StateAwaitingConfirmation
	emitter.FormulationReady(raw, result.FormulatedText, result.Degraded, result.DegradedReason)
	return false
}

// runConfirmationGate implements phase 2. Returns (completed, cancelled).
func (e *Engine) runConfirmationGate(ctx context.Context, session *Session, handle *sessionHandle) (bool, bool) {
	handle.awaiting.Store(true)
	defer handle.awaiting.Store(false)

	timer := time.NewTimer(e.Config.ConfirmationTimeout)
	defer timer.Stop()

	select {
	case text := <-handle.confirmCh:
		if text != nil && *text != "" {
			session.Demand.SetFormulatedText(*text)
		}
		session.State = StateMatching
		return false, false

	case <-handle.cancelCh:
		return false, true

	case <-ctx.Done():
		return false, true

	case <-timer.C:
		session.State = StateCompleted
		session.PlanOutput = nil
		session.AddTrace("confirmation_timeout", "", "confirmation window elapsed")
		return true, false
	}
}

// runMatching implements phase 3. The returned flag reports cancellation;
// this phase does not observe the cancel token, so it is always false.
func (e *Engine) runMatching(ctx context.Context, session *Session, defaults RunDefaults, emitter *events.Emitter) bool {
	demandVector, err := e.Encoder.Encode(ctx, session.Demand.FormulatedText)
	if err != nil {
		planText := "(error) " + err.Error()
		session.AddTrace("matching", session.Demand.FormulatedText, "encoding failed: "+err.Error())
		session.State = StateFailed
		emitter.PlanReady(planText, session.CenterRounds, session.ParticipantIDs())
		return false
	}

	agentVectors := defaults.AgentVectors
	if agentVectors == nil {
		agentVectors = e.collectRegistryVectors(defaults.Scope)
	}

	matches := e.ResonanceDetector.Detect(demandVector, agentVectors, defaults.KStar)

	scores := make([]events.AgentScore, 0, len(matches))
	for _, m := range matches {
		displayName := m.AgentID
		if defaults.AgentDisplayNames != nil {
			if n, ok := defaults.AgentDisplayNames[m.AgentID]; ok {
				displayName = n
			}
		}
		session.Participants = append(session.Participants, &AgentParticipant{
			Identity:       AgentIdentity{AgentID: m.AgentID, DisplayName: displayName},
			State:          ParticipantInvited,
			ResonanceScore: m.Score,
		})
		scores = append(scores, events.AgentScore{AgentID: m.AgentID, Score: m.Score})
	}

	emitter.ResonanceActivated(scores)
	session.State = StateOffering
	return false
}

func (e *Engine) collectRegistryVectors(scope string) map[string]vector.Vector {
	if e.Registry == nil {
		return nil
	}
	ids := e.Registry.AllAgentIDs(scope)
	out := make(map[string]vector.Vector, len(ids))
	for _, id := range ids {
		entry, ok := e.Registry.Entry(id)
		if !ok || entry.ProfileVector == nil {
			continue
		}
		out[id] = entry.ProfileVector
	}
	return out
}
