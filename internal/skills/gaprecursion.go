package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/towow/negotiation/internal/negotiation"
	"github.com/towow/negotiation/internal/negotiation/negerr"
)

// LLMGapRecursionSkill inspects a finished plan and its participants for
// gaps worth seeding a bounded sub-negotiation, stopping naturally as
// recursion depth grows via the prompt's own framing rather than a separate
// cutoff (the engine enforces the hard depth cap independently).
type LLMGapRecursionSkill struct {
	Client negotiation.PlatformLLMClient
}

func NewLLMGapRecursionSkill(client negotiation.PlatformLLMClient) *LLMGapRecursionSkill {
	return &LLMGapRecursionSkill{Client: client}
}

func (*LLMGapRecursionSkill) Name() string { return "gap_recursion" }

func (s *LLMGapRecursionSkill) Execute(ctx context.Context, gc negotiation.GapRecursionContext) ([]string, error) {
	system := "Review the finished negotiation plan and its participants. List " +
		"any gaps still unaddressed that would benefit from a focused follow-up " +
		"negotiation. Reply with a JSON array of short gap descriptions, or an " +
		"empty array if there are none."

	var names []string
	for _, p := range gc.Participants {
		names = append(names, p.Identity.AgentID)
	}
	prompt := fmt.Sprintf(
		"Recursion depth: %d\nParticipants: %s\nPlan:\n%s",
		gc.RecursionDepth, strings.Join(names, ", "), gc.PlanText,
	)

	resp, err := s.Client.Chat(ctx, []negotiation.ChatMessage{{Role: "user", Content: prompt}}, system, nil)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, nil
	}
	var gaps []string
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &gaps); err != nil {
		return nil, negerr.Classify(err, negerr.TypeSkill)
	}
	return gaps, nil
}

func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
