package negotiation

import (
	"context"
	"errors"
	"sync"

	"github.com/towow/negotiation/pkg/vector"
)

// fakeAdapter is a minimal Adapter double for tests.
type fakeAdapter struct {
	mu       sync.Mutex
	chatErr  error
	chatResp string
}

func (a *fakeAdapter) GetProfile(_ context.Context, agentID string) (map[string]interface{}, error) {
	return map[string]interface{}{"agent_id": agentID}, nil
}

func (a *fakeAdapter) Chat(_ context.Context, _ string, _ []ChatMessage, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chatResp, a.chatErr
}

func (a *fakeAdapter) ChatStream(_ context.Context, _ string, _ []ChatMessage, _ string) (<-chan string, <-chan error) {
	ch := make(chan string)
	errc := make(chan error)
	close(ch)
	close(errc)
	return ch, errc
}

// fakeRegistry is a minimal AgentRegistry double for tests.
type fakeRegistry struct {
	mu       sync.Mutex
	adapters map[string]Adapter
	entries  map[string]AgentRegistryEntry
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{adapters: map[string]Adapter{}, entries: map[string]AgentRegistryEntry{}}
}

func (r *fakeRegistry) AdapterFor(agentID string) (Adapter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.adapters[agentID]
	return a, ok
}

func (r *fakeRegistry) Entry(agentID string) (AgentRegistryEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[agentID]
	return e, ok
}

func (r *fakeRegistry) AllAgentIDs(_ string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

func (r *fakeRegistry) RegisterSource(entry AgentRegistryEntry, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Identity.AgentID] = entry
	r.adapters[entry.Identity.AgentID] = adapter
}

func (r *fakeRegistry) UnregisterAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, agentID)
	delete(r.adapters, agentID)
}

// stubEncoder returns a pre-set vector for every input, ignoring text.
type stubEncoder struct{ err error }

func (e stubEncoder) Encode(_ context.Context, text string) (vector.Vector, error) {
	if e.err != nil {
		return nil, e.err
	}
	return vector.Vector{1, 0}, nil
}

// passthroughFormulation echoes the raw intent as the formulated text.
type passthroughFormulation struct{}

func (passthroughFormulation) Name() string { return "formulation" }
func (passthroughFormulation) Execute(_ context.Context, fc FormulationContext) (FormulationResult, error) {
	return FormulationResult{FormulatedText: fc.RawIntent}, nil
}

// scriptedOffer returns a canned offer, or an error for agent ids listed in
// failFor.
type scriptedOffer struct {
	failFor map[string]error
}

func (scriptedOffer) Name() string { return "offer" }

func (s scriptedOffer) Execute(_ context.Context, oc OfferContext) (OfferResult, error) {
	if err, ok := s.failFor[oc.Identity.AgentID]; ok {
		return OfferResult{}, err
	}
	return OfferResult{Content: "I'll help: " + oc.Identity.AgentID}, nil
}

var errOfferFailed = errors.New("adapter raised")

// scriptedCenter replays a fixed sequence of CenterResult values, one per
// call, repeating the last entry if called more times than scripted.
type scriptedCenter struct {
	mu     sync.Mutex
	script []CenterResult
	calls  int
}

func (*scriptedCenter) Name() string { return "center" }

func (c *scriptedCenter) Execute(_ context.Context, _ CenterContext) (CenterResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.calls
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	c.calls++
	if idx < 0 {
		return CenterResult{}, nil
	}
	return c.script[idx], nil
}
