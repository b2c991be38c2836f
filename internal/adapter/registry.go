// Package adapter provides the AgentRegistry implementation and the
// Anthropic-backed Adapter that lets the negotiation engine reach real
// agents.
package adapter

import (
	"sync"

	"github.com/towow/negotiation/internal/negotiation"
)

// Registry is a mutex-guarded, read-mostly AgentRegistry (spec-equivalent
// §5 shared-resource policy): writes go through RegisterSource/
// UnregisterAgent, reads take a snapshot under a shared lock.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]negotiation.AgentRegistryEntry
	adapters map[string]negotiation.Adapter
	scenes   map[string]map[string]struct{} // sceneID -> set of agent ids
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[string]negotiation.AgentRegistryEntry),
		adapters: make(map[string]negotiation.Adapter),
		scenes:   make(map[string]map[string]struct{}),
	}
}

func (r *Registry) AdapterFor(agentID string) (negotiation.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[agentID]
	return a, ok
}

func (r *Registry) Entry(agentID string) (negotiation.AgentRegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[agentID]
	return e, ok
}

// AllAgentIDs returns every agent id visible in scope. "all" and "network"
// are synonyms for the whole registry; "scene:<id>" narrows to agents
// registered under that scene tag.
func (r *Registry) AllAgentIDs(scope string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if scope == "" || scope == "all" || scope == "network" {
		ids := make([]string, 0, len(r.entries))
		for id := range r.entries {
			ids = append(ids, id)
		}
		return ids
	}

	sceneID, ok := sceneFromScope(scope)
	if !ok {
		return nil
	}
	members := r.scenes[sceneID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) RegisterSource(entry negotiation.AgentRegistryEntry, adapter negotiation.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := entry.Identity.AgentID
	r.entries[id] = entry
	r.adapters[id] = adapter
	for tag := range entry.Identity.SceneTags {
		if r.scenes[tag] == nil {
			r.scenes[tag] = make(map[string]struct{})
		}
		r.scenes[tag][id] = struct{}{}
	}
}

func (r *Registry) UnregisterAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, agentID)
	delete(r.adapters, agentID)
	for tag, members := range r.scenes {
		delete(members, agentID)
		if len(members) == 0 {
			delete(r.scenes, tag)
		}
	}
}

func sceneFromScope(scope string) (string, bool) {
	const prefix = "scene:"
	if len(scope) <= len(prefix) || scope[:len(prefix)] != prefix {
		return "", false
	}
	return scope[len(prefix):], true
}
