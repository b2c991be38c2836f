package negotiation

import (
	"context"
	"fmt"
	"strings"

	"github.com/towow/negotiation/internal/events"
)

// runCenterLoop implements phase 5: the bounded-round coordinator loop.
func (e *Engine) runCenterLoop(ctx context.Context, session *Session, defaults RunDefaults, emitter *events.Emitter) {
	engineCtx := EngineContext{
		Registry:    e.Registry,
		SubNegSkill: defaults.SubNegotiationSkill,
		RunDefaults: defaults,
		RunChild: func(ctx context.Context, child *Session, rd RunDefaults) (*Session, error) {
			emitter.SubNegotiationStarted(child.NegotiationID, child.Demand.RawIntent)
			return e.StartNegotiation(ctx, child, rd)
		},
	}

	for {
		roundNumber := session.CenterRounds + 1
		if roundNumber > session.MaxCenterRounds {
			planText := e.synthesizeOfferSummary(session, DiagnosticMaxRounds)
			session.SetPlanOutput(planText)
			session.State = StateCompleted
			emitter.PlanReady(planText, session.CenterRounds, session.ParticipantIDs())
			return
		}

		cc := e.buildCenterContext(session, defaults, roundNumber)

		result, err := defaults.CenterSkill.Execute(ctx, cc)
		if err != nil {
			result, err = defaults.CenterSkill.Execute(ctx, cc) // retry once
			if err != nil {
				planText := "(error) " + err.Error()
				session.AddTrace("center", "", "center skill failed after retry: "+err.Error())
				session.State = StateFailed
				emitter.PlanReady(planText, session.CenterRounds, session.ParticipantIDs())
				return
			}
		}

		if len(result.ToolCalls) == 0 {
			planText := result.Content
			if strings.TrimSpace(planText) == "" {
				planText = e.synthesizeOfferSummary(session, DiagnosticMaxRounds)
			}
			session.SetPlanOutput(planText)
			session.State = StateCompleted
			emitter.PlanReady(planText, session.CenterRounds, session.ParticipantIDs())
			return
		}

		for _, tc := range result.ToolCalls {
			emitter.CenterToolCall(tc.Name, tc.Arguments, roundNumber)

			handler, ok := e.toolRegistry.Get(tc.Name)
			if !ok {
				session.AddTrace("center.tool_call", tc.Name, "unknown tool")
				continue
			}

			hctx, cancel := context.WithTimeout(ctx, e.Config.ToolTimeout)
			res, herr := handler.Handle(hctx, session, tc.Arguments, engineCtx)
			cancel()

			if herr != nil {
				e.recordToolDispatch(tc.Name, "error")
				session.AddTrace(tc.Name, fmt.Sprintf("%v", tc.Arguments), herr.Error())
				continue
			}
			e.recordToolDispatch(tc.Name, "success")
			session.ToolHistory = append(session.ToolHistory, ToolCallRecord{
				ToolName: tc.Name, Arguments: tc.Arguments, Result: res, Round: roundNumber,
			})

			if session.State == StateCompleted {
				session.CenterRounds++
				planText := ""
				if session.PlanOutput != nil {
					planText = *session.PlanOutput
				}
				emitter.PlanReady(planText, session.CenterRounds, session.ParticipantIDs())
				return
			}
		}

		session.CenterRounds++
	}
}

func (e *Engine) buildCenterContext(session *Session, defaults RunDefaults, roundNumber int) CenterContext {
	transcript := []ChatMessage{{Role: "system", Content: session.Demand.FormulatedText}}
	profiles := make(map[string]map[string]interface{})
	offers := make(map[string]Offer)
	for _, p := range session.Participants {
		profiles[p.Identity.AgentID] = map[string]interface{}{
			"agent_id":        p.Identity.AgentID,
			"display_name":    p.Identity.DisplayName,
			"resonance_score": p.ResonanceScore,
			"state":           string(p.State),
		}
		if p.Offer != nil {
			offers[p.Identity.AgentID] = *p.Offer
			transcript = append(transcript, ChatMessage{Role: "assistant", Content: p.Identity.AgentID + ": " + p.Offer.Content})
		}
	}
	for _, t := range session.ToolHistory {
		transcript = append(transcript, ChatMessage{Role: "tool", Content: fmt.Sprintf("%s -> %v", t.ToolName, t.Result)})
	}
	return CenterContext{
		Transcript:          transcript,
		ParticipantProfiles: profiles,
		Offers:              offers,
		Tools:               e.toolRegistry.Descriptors(),
		RoundNumber:         roundNumber,
		MaxRounds:           session.MaxCenterRounds,
	}
}

// synthesizeOfferSummary builds a degenerate plan by concatenating offers,
// with an optional leading diagnostic marker.
func (e *Engine) synthesizeOfferSummary(session *Session, marker string) string {
	var parts []string
	if marker != "" {
		parts = append(parts, marker)
	}
	for _, p := range session.Participants {
		if p.Offer != nil {
			parts = append(parts, fmt.Sprintf("%s: %s", p.Identity.AgentID, p.Offer.Content))
		}
	}
	return strings.Join(parts, " ")
}
