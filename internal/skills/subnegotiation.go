package skills

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/towow/negotiation/internal/negotiation"
	"github.com/towow/negotiation/internal/negotiation/negerr"
)

// subNegotiationProposal is the structured shape the platform LLM is asked
// to emit; a blank Demand means "decline to spawn a child negotiation".
type subNegotiationProposal struct {
	Demand   string   `json:"demand"`
	AgentIDs []string `json:"agent_ids"`
}

// LLMSubNegotiationSkill asks the platform LLM whether a gap in the parent
// negotiation is worth splitting into a child negotiation, and if so, what
// demand and candidate agents the child should start with.
type LLMSubNegotiationSkill struct {
	Client negotiation.PlatformLLMClient
}

func NewLLMSubNegotiationSkill(client negotiation.PlatformLLMClient) *LLMSubNegotiationSkill {
	return &LLMSubNegotiationSkill{Client: client}
}

func (*LLMSubNegotiationSkill) Name() string { return "sub_negotiation" }

func (s *LLMSubNegotiationSkill) Execute(ctx context.Context, sc negotiation.SubNegotiationContext) (*negotiation.SubNegotiationResult, error) {
	system := "A parent negotiation has identified a gap that may warrant a " +
		"focused child negotiation. Reply with a JSON object of the shape " +
		`{"demand": "...", "agent_ids": ["..."]}. Leave "demand" empty if the ` +
		"gap does not warrant spawning a child negotiation."

	var parentSummary string
	if sc.Parent != nil {
		parentSummary = sc.Parent.NegotiationID + ": " + sc.Parent.Demand.RawIntent
	}
	prompt := "Parent negotiation: " + parentSummary + "\nGap: " + sc.GapSpec

	resp, err := s.Client.Chat(ctx, []negotiation.ChatMessage{{Role: "user", Content: prompt}}, system, nil)
	if err != nil {
		return nil, err
	}

	var proposal subNegotiationProposal
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(extractJSONObject(text)), &proposal); err != nil {
		// Non-empty but unparseable is structurally invalid output, not a
		// decline (a decline is an empty-demand proposal, handled below).
		return nil, negerr.Classify(err, negerr.TypeSkill)
	}
	if strings.TrimSpace(proposal.Demand) == "" {
		return nil, nil
	}
	return &negotiation.SubNegotiationResult{
		SubDemandText: proposal.Demand,
		AgentIDs:      proposal.AgentIDs,
	}, nil
}

// extractJSONObject trims any prose surrounding the first top-level JSON
// object in text, since LLMs frequently wrap structured replies in commentary
// despite being asked not to.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
