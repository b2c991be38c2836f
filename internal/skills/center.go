package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/towow/negotiation/internal/negotiation"
)

// LLMCenterSkill drives one coordinator round: it hands the platform LLM
// the running transcript and the registered tool schema, and returns
// whatever tool calls (or final content) the model produced.
type LLMCenterSkill struct {
	Client negotiation.PlatformLLMClient
}

func NewLLMCenterSkill(client negotiation.PlatformLLMClient) *LLMCenterSkill {
	return &LLMCenterSkill{Client: client}
}

func (*LLMCenterSkill) Name() string { return "center" }

func (s *LLMCenterSkill) Execute(ctx context.Context, cc negotiation.CenterContext) (negotiation.CenterResult, error) {
	system := fmt.Sprintf(
		"You are coordinating a multi-agent negotiation, round %d of %d. "+
			"Review the offers and transcript below. Either call a tool to make "+
			"progress, or call output_plan once you have enough information to "+
			"synthesize a final plan.",
		cc.RoundNumber, cc.MaxRounds,
	)

	messages := append([]negotiation.ChatMessage{}, cc.Transcript...)
	if len(cc.Offers) > 0 {
		var sb strings.Builder
		for id, offer := range cc.Offers {
			fmt.Fprintf(&sb, "%s: %s\n", id, offer.Content)
		}
		messages = append(messages, negotiation.ChatMessage{Role: "user", Content: "Offers so far:\n" + sb.String()})
	}

	resp, err := s.Client.Chat(ctx, messages, system, cc.Tools)
	if err != nil {
		return negotiation.CenterResult{}, err
	}
	return negotiation.CenterResult{ToolCalls: resp.ToolCalls, Content: resp.Content}, nil
}
