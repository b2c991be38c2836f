// Package skills implements the five pluggable strategy points the engine
// invokes with a typed context: formulation, offer, center coordination,
// sub-negotiation spawning, and gap recursion. Each is LLM-backed through
// negotiation.Adapter or negotiation.PlatformLLMClient, grounded on the
// prompt-construction conventions of the client-side adapters this engine
// was adapted from.
package skills

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/towow/negotiation/internal/negotiation"
)

// LLMFormulationSkill rewrites a raw intent into a structured demand
// statement via the platform LLM.
type LLMFormulationSkill struct {
	Client negotiation.PlatformLLMClient
}

func NewLLMFormulationSkill(client negotiation.PlatformLLMClient) *LLMFormulationSkill {
	return &LLMFormulationSkill{Client: client}
}

func (*LLMFormulationSkill) Name() string { return "formulation" }

func (s *LLMFormulationSkill) Execute(ctx context.Context, fc negotiation.FormulationContext) (negotiation.FormulationResult, error) {
	system := "You rewrite a user's raw request into a single, precise demand statement " +
		"that a matching system can score agents against. Respond with only the rewritten " +
		"text, no preamble."
	messages := []negotiation.ChatMessage{
		{Role: "user", Content: fc.RawIntent},
	}
	resp, err := s.Client.Chat(ctx, messages, system, nil)
	if err != nil {
		return negotiation.FormulationResult{}, err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return negotiation.FormulationResult{
			FormulatedText: fc.RawIntent,
			Degraded:       true,
			DegradedReason: "formulation skill returned empty text",
		}, nil
	}
	return negotiation.FormulationResult{FormulatedText: text}, nil
}

// LLMOfferSkill asks a participating agent, through its adapter, to respond
// to the formulated demand with a structured offer.
type LLMOfferSkill struct{}

func NewLLMOfferSkill() *LLMOfferSkill { return &LLMOfferSkill{} }

func (*LLMOfferSkill) Name() string { return "offer" }

func (s *LLMOfferSkill) Execute(ctx context.Context, oc negotiation.OfferContext) (negotiation.OfferResult, error) {
	profileJSON, _ := json.Marshal(oc.Profile)
	system := "You are representing agent " + oc.Identity.AgentID + " in a negotiation. " +
		"Given the agent's profile and the demand below, respond with a concise offer " +
		"describing what this agent can contribute."
	prompt := "Demand: " + oc.FormulatedText + "\nProfile: " + string(profileJSON)

	content, err := oc.Adapter.Chat(ctx, oc.Identity.AgentID, []negotiation.ChatMessage{
		{Role: "user", Content: prompt},
	}, system)
	if err != nil {
		return negotiation.OfferResult{}, err
	}
	return negotiation.OfferResult{Content: strings.TrimSpace(content)}, nil
}
