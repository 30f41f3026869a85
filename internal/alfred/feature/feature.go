// Package feature defines the pluggable feature contract and the capability
// registry that the intent router selects from.
//
// A feature is one task domain (calendar, fun facts, conversation). Each
// feature describes itself in natural language; the description is embedded
// verbatim in the routing prompt so the oracle can match user intent against
// it. Features never parse the routing decision themselves; they only
// receive messages the dispatcher has already routed to them.
package feature

import (
	"context"
	"errors"
	"fmt"

	"github.com/bdobrica/Alfred/internal/alfred/memory"
)

// ErrDuplicateFeature is returned by Registry.Register when a feature with
// the same name has already been registered. Registration happens once at
// startup, so this is a fatal configuration error, never a runtime one.
var ErrDuplicateFeature = errors.New("feature: duplicate feature name")

// DeferredAction is a not-yet-committed mutation awaiting explicit user
// confirmation. Execute runs the action exactly once; the returned string is
// the user-visible result.
type DeferredAction struct {
	// Prompt is the confirmation question shown to the user, e.g.
	// "Rename 4 events? (yes/no)".
	Prompt string

	// Execute performs the deferred mutation. It is invoked at most once,
	// only after the user's next message is classified as affirmative.
	Execute func(ctx context.Context) (string, error)
}

// Result is the outcome of a feature handling one message: either a plain
// reply, or a deferred action whose Prompt becomes the reply for this turn.
type Result struct {
	// Reply is the text sent back to the user. Ignored when Deferred is set
	// (the deferred action's Prompt is used instead).
	Reply string

	// Deferred, when non-nil, is a destructive action that must be confirmed
	// before it runs.
	Deferred *DeferredAction
}

// Feature is the contract every pluggable handler implements.
type Feature interface {
	// Name is the unique feature identifier used by the oracle to select it.
	Name() string

	// Description is a one-line summary shown in feature listings.
	Description() string

	// Capabilities is the detailed natural-language capability text embedded
	// verbatim in the routing prompt.
	Capabilities() string

	// Handle processes a message already routed to this feature. turns is a
	// snapshot of the recent conversation (oldest first) and must not be
	// mutated.
	Handle(ctx context.Context, message string, turns []memory.Turn) (Result, error)
}

// Descriptor is the registry's immutable record of one registered feature.
type Descriptor struct {
	// Name is the feature's unique name.
	Name string

	// Capabilities is the feature's capability text.
	Capabilities string

	// Rank is the registration index. It is a stable tie-break for display
	// ordering only; routing never uses it as a signal.
	Rank int

	// Feature is the registered implementation.
	Feature Feature
}

// Registry holds the ordered set of registered features. Registration order
// is significant for human-auditable priority; the last-registered feature is
// the conventional fallback. The registry is populated once at startup and
// read-only afterwards, so no locking is needed.
type Registry struct {
	descriptors []Descriptor
	byName      map[string]int // name → index into descriptors
}

// NewRegistry creates an empty feature registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register appends f to the registry. Returns ErrDuplicateFeature (wrapped
// with the offending name) when a feature with the same name already exists.
func (r *Registry) Register(f Feature) error {
	name := f.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateFeature, name)
	}
	r.byName[name] = len(r.descriptors)
	r.descriptors = append(r.descriptors, Descriptor{
		Name:         name,
		Capabilities: f.Capabilities(),
		Rank:         len(r.descriptors),
		Feature:      f,
	})
	return nil
}

// List returns all descriptors in registration order. The returned slice is
// a copy; callers may not mutate registry state through it.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Lookup returns the feature registered under name, or nil when no such
// feature exists.
func (r *Registry) Lookup(name string) Feature {
	i, ok := r.byName[name]
	if !ok {
		return nil
	}
	return r.descriptors[i].Feature
}

// Fallback returns the last-registered feature, by convention the
// conversational catch-all that handles anything the router could not match.
// Returns nil when the registry is empty.
func (r *Registry) Fallback() Feature {
	if len(r.descriptors) == 0 {
		return nil
	}
	return r.descriptors[len(r.descriptors)-1].Feature
}

// Len returns the number of registered features.
func (r *Registry) Len() int {
	return len(r.descriptors)
}

// Summary returns a human-readable bullet list of all registered features,
// used in help text and in the "nothing matched" reply.
func (r *Registry) Summary() string {
	if len(r.descriptors) == 0 {
		return "No features available"
	}
	var out string
	for _, d := range r.descriptors {
		out += fmt.Sprintf("• %s: %s\n", d.Name, d.Feature.Description())
	}
	return out[:len(out)-1]
}
