package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// SpeakToolName is the fixed tool every free-text response falls back to.
const SpeakToolName = "speak"

// Schema describes one tool the assistant may invoke.
type Schema struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters json.RawMessage
}

// Registry holds the tools currently offered to the backend. Safe for
// concurrent use; the reconciler reads it on every cycle while the host
// registers and removes tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Schema
}

func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]Schema)}
	r.Register(Schema{
		Name:        SpeakToolName,
		Description: "Speak the given text aloud to the user.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
	})
	return r
}

func (r *Registry) Register(s Schema) error {
	if s.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if len(s.Parameters) == 0 {
		s.Parameters = json.RawMessage(`{"type":"object"}`)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[s.Name] = s
	return nil
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered schemas sorted by name, so descriptor
// serialization stays deterministic across reconcile cycles.
func (r *Registry) All() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.tools))
	for _, s := range r.tools {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
