package negotiation

import (
	"context"

	"github.com/towow/negotiation/pkg/vector"
)

// ChatMessage is one turn in a chat transcript, role/content shaped the way
// every LLM API in the pack represents it.
type ChatMessage struct {
	Role    string
	Content string
}

// Adapter represents a client-side LLM channel: one provider per adapter,
// many adapters per engine, routed per-agent by the AgentRegistry.
type Adapter interface {
	// GetProfile returns a structured profile for agentID. Must not fail on
	// unknown agents — callers receive a minimal {agent_id} map instead.
	GetProfile(ctx context.Context, agentID string) (map[string]interface{}, error)

	// Chat sends a one-shot request and returns the complete response text.
	// Fails with an AdapterError on provider failure.
	Chat(ctx context.Context, agentID string, messages []ChatMessage, systemPrompt string) (string, error)

	// ChatStream returns a finite, single-consumer channel of text chunks.
	// On failure, the channel is closed after emitting whatever partial
	// output preceded the failure, and the returned error reports it.
	ChatStream(ctx context.Context, agentID string, messages []ChatMessage, systemPrompt string) (<-chan string, <-chan error)
}

// ToolDescriptor is a tool schema offered to the platform LLM.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ToolCall is one structured tool invocation returned by the platform LLM.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// LLMResponse is the platform LLM's answer to one chat call.
type LLMResponse struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
}

// PlatformLLMClient is a single synchronous LLM call supporting structured
// tool-use responses, used by the center coordinator (and by the built-in
// ask_agent tool is not this — that goes through Adapter).
type PlatformLLMClient interface {
	Chat(ctx context.Context, messages []ChatMessage, systemPrompt string, tools []ToolDescriptor) (LLMResponse, error)
}

// AgentRegistryEntry describes one agent known to the registry.
type AgentRegistryEntry struct {
	Identity       AgentIdentity
	ProfileVector  vector.Vector
	ProfilePayload map[string]interface{}
}

// AgentRegistry maps agent ids to the adapter that owns them, plus cached
// profile vectors and scope metadata. Read-mostly: writes are guarded by a
// single mutex, readers sample a consistent snapshot via AllAgentIDs once
// per matching pass.
type AgentRegistry interface {
	// AdapterFor returns the Adapter registered for agentID, or false if
	// unknown.
	AdapterFor(agentID string) (Adapter, bool)

	// Entry returns the registry entry for agentID, or false if unknown.
	Entry(agentID string) (AgentRegistryEntry, bool)

	// AllAgentIDs returns every known agent id in the given scope
	// ("all", "network", or "scene:<id>" — "all" and "network" are
	// synonyms).
	AllAgentIDs(scope string) []string

	// RegisterSource adds or replaces an agent's registry entry.
	RegisterSource(entry AgentRegistryEntry, adapter Adapter)

	// UnregisterAgent removes an agent from the registry.
	UnregisterAgent(agentID string)
}
