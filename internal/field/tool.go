package field

import (
	"context"

	"github.com/towow/negotiation/internal/negotiation"
)

// DepositToolName and MatchToolName are the center tool names that expose
// the persistent intent field to the coordinator loop, so a negotiation can
// read and write the longer-lived index instead of only the per-run
// resonance detector.
const (
	DepositToolName = "deposit_intent"
	MatchToolName   = "match_intents"
)

// DepositHandler lets the center coordinator persist an unmet demand or gap
// into the field for future negotiations to resonance-match against.
type DepositHandler struct {
	Field *MemoryField
}

// NewDepositHandler wraps field as a negotiation.ToolHandler.
func NewDepositHandler(field *MemoryField) *DepositHandler {
	return &DepositHandler{Field: field}
}

func (*DepositHandler) Name() string { return DepositToolName }

func (*DepositHandler) Descriptor() negotiation.ToolDescriptor {
	return negotiation.ToolDescriptor{
		Name:        DepositToolName,
		Description: "Persist an intent into the long-lived intent field so future negotiations can match against it.",
		InputSchema: map[string]interface{}{
			"type":     "object",
			"required": []string{"text", "owner"},
			"properties": map[string]interface{}{
				"text":  map[string]interface{}{"type": "string"},
				"owner": map[string]interface{}{"type": "string"},
			},
		},
	}
}

func (h *DepositHandler) Handle(ctx context.Context, session *negotiation.Session, args map[string]interface{}, _ negotiation.EngineContext) (map[string]interface{}, error) {
	text, _ := args["text"].(string)
	owner, _ := args["owner"].(string)
	if owner == "" {
		owner = session.NegotiationID
	}
	id, err := h.Field.Deposit(ctx, text, owner, map[string]interface{}{"negotiation_id": session.NegotiationID})
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, nil
	}
	session.AddTrace(DepositToolName, text, id)
	return map[string]interface{}{"intent_id": id}, nil
}

// MatchHandler lets the center coordinator query the field for owners whose
// previously deposited intents resemble the current negotiation's demand.
type MatchHandler struct {
	Field *MemoryField
}

// NewMatchHandler wraps field as a negotiation.ToolHandler.
func NewMatchHandler(field *MemoryField) *MatchHandler {
	return &MatchHandler{Field: field}
}

func (*MatchHandler) Name() string { return MatchToolName }

func (*MatchHandler) Descriptor() negotiation.ToolDescriptor {
	return negotiation.ToolDescriptor{
		Name:        MatchToolName,
		Description: "Find owners in the long-lived intent field whose deposited intents resemble a query.",
		InputSchema: map[string]interface{}{
			"type":     "object",
			"required": []string{"text"},
			"properties": map[string]interface{}{
				"text": map[string]interface{}{"type": "string"},
				"k":    map[string]interface{}{"type": "integer"},
			},
		},
	}
}

func (h *MatchHandler) Handle(ctx context.Context, session *negotiation.Session, args map[string]interface{}, _ negotiation.EngineContext) (map[string]interface{}, error) {
	text, _ := args["text"].(string)
	k := 3
	if raw, ok := args["k"].(float64); ok && raw > 0 {
		k = int(raw)
	}

	matches, err := h.Field.MatchOwners(ctx, text, k, 3)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, nil
	}

	owners := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		owners = append(owners, map[string]interface{}{"owner": m.Owner, "score": m.Score})
	}
	session.AddTrace(MatchToolName, text, owners)
	return map[string]interface{}{"owners": owners}, nil
}
