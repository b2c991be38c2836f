package negotiation

import (
	"context"
	"fmt"
	"sync"

	"github.com/towow/negotiation/internal/negotiation/negerr"
)

// ReservedOutputPlanTool is the one tool name extensions may never
// register (invariant 9).
const ReservedOutputPlanTool = "output_plan"

// EngineContext is passed to every tool handler alongside the session and
// the call's arguments. It exposes the collaborators a handler needs
// without granting direct access to engine internals.
type EngineContext struct {
	Registry     AgentRegistry
	SubNegSkill  SubNegotiationSkill
	RunChild     func(ctx context.Context, child *Session, runDefaults RunDefaults) (*Session, error)
	RunDefaults  RunDefaults
}

// ToolHandler is a named, registered handler for a center tool call.
type ToolHandler interface {
	Name() string
	Handle(ctx context.Context, session *Session, args map[string]interface{}, ec EngineContext) (map[string]interface{}, error)
}

// DescribedToolHandler is implemented by extension handlers that supply
// their own schema instead of falling back to the built-in switch in
// builtinDescriptor.
type DescribedToolHandler interface {
	ToolHandler
	Descriptor() ToolDescriptor
}

// ToolRegistry is a name-keyed table of handlers. The builder registers
// extensions while assembling the engine; Register stays callable afterwards
// (through Engine.RegisterToolHandler), so registration and lookups are
// guarded by the read-write mutex below.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolHandler
}

// NewToolRegistry returns a registry pre-populated with the built-in
// handlers (output_plan, ask_agent, spawn_sub_negotiation).
func NewToolRegistry() *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]ToolHandler)}
	r.mustRegisterBuiltin(&outputPlanHandler{})
	r.mustRegisterBuiltin(&askAgentHandler{})
	r.mustRegisterBuiltin(&spawnSubNegotiationHandler{})
	return r
}

func (r *ToolRegistry) mustRegisterBuiltin(h ToolHandler) {
	r.tools[h.Name()] = h
}

// Register adds an extension handler. Fails if the name is the reserved
// output_plan name or already registered.
func (r *ToolRegistry) Register(h ToolHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h.Name() == ReservedOutputPlanTool {
		return negerr.NewEngineError("tool name output_plan is reserved", nil)
	}
	if _, exists := r.tools[h.Name()]; exists {
		return negerr.NewEngineError(fmt.Sprintf("tool %q is already registered", h.Name()), nil)
	}
	r.tools[h.Name()] = h
	return nil
}

// Get looks up a handler by name.
func (r *ToolRegistry) Get(name string) (ToolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.tools[name]
	return h, ok
}

// Descriptors returns the tool schemas for every registered handler, for
// the platform LLM's tools parameter.
func (r *ToolRegistry) Descriptors() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.tools))
	for name, h := range r.tools {
		if d, ok := h.(DescribedToolHandler); ok {
			out = append(out, d.Descriptor())
			continue
		}
		out = append(out, builtinDescriptor(name))
	}
	return out
}

func builtinDescriptor(name string) ToolDescriptor {
	switch name {
	case ReservedOutputPlanTool:
		return ToolDescriptor{
			Name:        name,
			Description: "Finalize the negotiation with a synthesized plan.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"plan_text"},
				"properties": map[string]interface{}{
					"plan_text": map[string]interface{}{"type": "string"},
				},
			},
		}
	case "ask_agent":
		return ToolDescriptor{
			Name:        name,
			Description: "Ask a participating agent a one-shot question.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"agent_id", "question"},
				"properties": map[string]interface{}{
					"agent_id": map[string]interface{}{"type": "string"},
					"question": map[string]interface{}{"type": "string"},
				},
			},
		}
	case "spawn_sub_negotiation":
		return ToolDescriptor{
			Name:        name,
			Description: "Spawn a nested negotiation to address a specific gap.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"sub_demand"},
				"properties": map[string]interface{}{
					"sub_demand": map[string]interface{}{"type": "string"},
					"scope":      map[string]interface{}{"type": "string"},
				},
			},
		}
	default:
		return ToolDescriptor{Name: name}
	}
}

// --- built-in handlers ---

type outputPlanHandler struct{}

func (*outputPlanHandler) Name() string { return ReservedOutputPlanTool }

func (*outputPlanHandler) Handle(_ context.Context, session *Session, args map[string]interface{}, _ EngineContext) (map[string]interface{}, error) {
	planText, _ := args["plan_text"].(string)
	session.SetPlanOutput(planText)
	session.State = StateCompleted
	return map[string]interface{}{"ok": true}, nil
}

type askAgentHandler struct{}

func (*askAgentHandler) Name() string { return "ask_agent" }

func (*askAgentHandler) Handle(ctx context.Context, session *Session, args map[string]interface{}, ec EngineContext) (map[string]interface{}, error) {
	agentID, _ := args["agent_id"].(string)
	question, _ := args["question"].(string)

	p := session.ParticipantByAgentID(agentID)
	if p == nil {
		return map[string]interface{}{"error": "unknown agent"}, nil
	}
	adapter, ok := ec.Registry.AdapterFor(agentID)
	if !ok {
		return map[string]interface{}{"error": "unknown agent"}, nil
	}
	answer, err := adapter.Chat(ctx, agentID, []ChatMessage{{Role: "user", Content: question}}, "")
	if err != nil {
		session.AddTrace("ask_agent", question, err.Error())
		return map[string]interface{}{"error": err.Error()}, nil
	}
	session.AddTrace("ask_agent", question, answer)
	return map[string]interface{}{"answer": answer}, nil
}

type spawnSubNegotiationHandler struct{}

func (*spawnSubNegotiationHandler) Name() string { return "spawn_sub_negotiation" }

func (*spawnSubNegotiationHandler) Handle(ctx context.Context, session *Session, args map[string]interface{}, ec EngineContext) (map[string]interface{}, error) {
	if session.RecursionDepth >= maxRecursionDepthOf(ec) {
		return map[string]interface{}{"skipped": true, "reason": "max_depth"}, nil
	}
	subDemand, _ := args["sub_demand"].(string)
	scope, _ := args["scope"].(string)
	if scope == "" {
		scope = "all"
	}

	if ec.SubNegSkill == nil {
		return map[string]interface{}{"skipped": true, "reason": "no_sub_negotiation_skill"}, nil
	}
	result, err := ec.SubNegSkill.Execute(ctx, SubNegotiationContext{Parent: session, GapSpec: subDemand})
	if err != nil {
		session.AddTrace("spawn_sub_negotiation", subDemand, err.Error())
		return map[string]interface{}{"error": err.Error()}, nil
	}
	if result == nil {
		return map[string]interface{}{"skipped": true, "reason": "skill_declined"}, nil
	}

	childID := session.NegotiationID + "/" + fmt.Sprintf("sub-%d", len(session.Trace))
	child := NewSession(childID, result.SubDemandText, session.Demand.UserID, session.Demand.SceneID, session.MaxCenterRounds)
	child.ParentNegotiationID = session.NegotiationID
	child.RecursionDepth = session.RecursionDepth + 1

	completed, err := ec.RunChild(ctx, child, ec.RunDefaults)
	if err != nil {
		session.AddTrace("spawn_sub_negotiation", subDemand, err.Error())
		return map[string]interface{}{"error": err.Error()}, nil
	}
	plan := ""
	if completed.PlanOutput != nil {
		plan = *completed.PlanOutput
	}
	return map[string]interface{}{"sub_negotiation_id": childID, "plan": plan, "scope": scope}, nil
}

func maxRecursionDepthOf(ec EngineContext) int {
	if ec.RunDefaults.MaxRecursionDepth > 0 {
		return ec.RunDefaults.MaxRecursionDepth
	}
	return 1
}
