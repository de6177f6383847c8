// Package agents holds the fixed registry of the six installation voices.
package agents

// Agent is an immutable (id, display-name, provider, model-identifier,
// color) record. Identity is the stable string ID.
type Agent struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Color        string `json:"color"`
	Description  string `json:"description"`
	VoiceProfile string `json:"-"` // default voice profile, overridable per structured output
}

// registry is the six predefined agents, loaded once at package init and
// never mutated afterward.
var registry = []Agent{
	{ID: "aria", Name: "Aria", Provider: "openai", Model: "gpt-4o", Color: "#E4572E",
		Description: "Outer voice, wide-band, first to speak.", VoiceProfile: "amber"},
	{ID: "boreas", Name: "Boreas", Provider: "openai", Model: "gpt-4o-mini", Color: "#17BEBB",
		Description: "Middle voice, measured and curious.", VoiceProfile: "cedar"},
	{ID: "callista", Name: "Callista", Provider: "anthropic", Model: "claude-3-5-sonnet", Color: "#FFC914",
		Description: "Center voice, closest to the room.", VoiceProfile: "lumen"},
	{ID: "dorian", Name: "Dorian", Provider: "anthropic", Model: "claude-3-5-haiku", Color: "#2E86AB",
		Description: "Center voice, reflective counterpart.", VoiceProfile: "quartz"},
	{ID: "elowen", Name: "Elowen", Provider: "openai", Model: "gpt-4o-mini", Color: "#A23B72",
		Description: "Middle voice, quick to respond.", VoiceProfile: "moss"},
	{ID: "fenwick", Name: "Fenwick", Provider: "openai", Model: "gpt-4o", Color: "#F18F01",
		Description: "Outer voice, closing presence.", VoiceProfile: "ember"},
}

// byID is built once for O(1) lookup.
var byID = func() map[string]Agent {
	m := make(map[string]Agent, len(registry))
	for _, a := range registry {
		m[a.ID] = a
	}
	return m
}()

// All returns the full, ordered agent registry.
func All() []Agent {
	out := make([]Agent, len(registry))
	copy(out, registry)
	return out
}

// Get looks up an agent by ID.
func Get(id string) (Agent, bool) {
	a, ok := byID[id]
	return a, ok
}
