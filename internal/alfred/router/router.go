// Package router implements oracle-backed intent classification.
//
// The router never understands message semantics itself. It assembles one
// structured request (the user's message, the speaker-tagged recent
// conversation, and every registered feature's capability text), sends it to
// the oracle exactly once, and normalizes the structured answer into a
// Decision. Ties between equally-plausible features are resolved entirely by
// the oracle's single choice; the router does not re-rank.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdobrica/Alfred/internal/alfred/feature"
	"github.com/bdobrica/Alfred/internal/alfred/memory"
	"github.com/bdobrica/Alfred/internal/alfred/oracle"
)

// DefaultConfidenceThreshold is the minimum oracle confidence required to
// route to the named feature. Matches below it fall through to the fallback.
const DefaultConfidenceThreshold = 0.6

// Decision is the outcome of one classification call. Produced fresh per
// message; never persisted.
type Decision struct {
	// Selected is the chosen feature descriptor, or nil when nothing matched
	// with sufficient confidence (including when the oracle named a feature
	// absent from the registry).
	Selected *feature.Descriptor

	// Confidence is the oracle's self-reported certainty in [0,1].
	Confidence float64

	// Raw is the oracle's JSON response, kept for logging and debugging.
	Raw string
}

// decisionSchema validates the oracle's routing JSON before it is decoded.
// "feature" may be a string or explicit null ("no feature matches").
var decisionSchema = oracle.MustCompileSchema("routing-decision.json", `{
	"type": "object",
	"properties": {
		"feature":    {"type": ["string", "null"]},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reasoning":  {"type": "string"}
	},
	"required": ["feature", "confidence"]
}`)

// decisionDoc mirrors the JSON document the oracle is asked to produce.
type decisionDoc struct {
	Feature    *string `json:"feature"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Classifier selects a feature for each inbound message.
type Classifier struct {
	provider  oracle.Provider
	threshold float64
}

// NewClassifier returns a Classifier backed by provider. threshold controls
// confidence gating; pass 0 to use DefaultConfidenceThreshold.
func NewClassifier(provider oracle.Provider, threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Classifier{provider: provider, threshold: threshold}
}

// Classify asks the oracle which registered feature should handle message.
//
// Normalization applied to the raw oracle answer, in order:
//  1. A named feature absent from the registry is treated as null (the
//     oracle's output is never trusted blindly).
//  2. Confidence below the threshold clears the selection regardless of the
//     named feature: low-confidence matches must not route to a feature.
//
// Oracle failures (network, timeout, quota, malformed or schema-invalid
// JSON) are returned as errors wrapping oracle.ErrUnavailable or
// oracle.ErrMalformedOutput; Classify never silently defaults to a feature.
func (c *Classifier) Classify(ctx context.Context, userID, message string, turns []memory.Turn, descriptors []feature.Descriptor) (Decision, error) {
	raw, err := c.provider.Generate(ctx, oracle.Request{
		System:    routingSystemPrompt,
		User:      buildRoutingPrompt(message, turns, descriptors),
		ForceJSON: true,
		MaxTokens: 256,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("router: classify: %w", err)
	}

	var doc decisionDoc
	if err := oracle.DecodeJSON(decisionSchema, raw, &doc); err != nil {
		return Decision{}, fmt.Errorf("router: classify: %w", err)
	}

	decision := Decision{Confidence: doc.Confidence, Raw: raw}

	if doc.Feature != nil {
		name := strings.TrimSpace(*doc.Feature)
		found := false
		for i := range descriptors {
			if descriptors[i].Name == name {
				decision.Selected = &descriptors[i]
				found = true
				break
			}
		}
		if !found && name != "" {
			// Defensive normalization: the oracle named something we never
			// registered. Treat as "none", not as an error.
			slog.Warn("router: oracle named unknown feature, treating as none",
				"feature", name, "user", userID)
		}
	}

	if decision.Confidence < c.threshold {
		decision.Selected = nil
	}

	return decision, nil
}

// Threshold returns the confidence threshold in effect.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// routingSystemPrompt is the fixed instruction block for routing calls.
const routingSystemPrompt = `You are the routing system for a personal assistant bot.
Your only job is to pick which feature should handle the user's message.
You never answer the message yourself and you never execute anything.

Respond ONLY with valid JSON of this exact shape:
{
  "feature": "<name of the best matching feature, or null>",
  "confidence": <0.0-1.0>,
  "reasoning": "<one sentence>"
}

Rules:
1. Analyze what the user is trying to accomplish.
2. Use the recent conversation to resolve references like "it", "that", "the event".
3. Match intent against each feature's capability description.
4. If the message doesn't clearly match any feature, return "feature": null.
5. Only use feature names from the list you are given; never invent names.
6. Be generous with calendar intent — mentions of times, dates, or events
   usually belong to the calendar feature.`

// buildRoutingPrompt assembles the user-role prompt for one routing call:
// recent conversation (chronological, speaker-tagged), the current message,
// and the capability text of every registered feature.
func buildRoutingPrompt(message string, turns []memory.Turn, descriptors []feature.Descriptor) string {
	var sb strings.Builder

	if len(turns) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, t := range turns {
			sb.WriteString(speakerLabel(t.Speaker))
			sb.WriteString(": ")
			sb.WriteString(t.Text)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "User message: %q\n\nAvailable features:\n", message)

	for _, d := range descriptors {
		fmt.Fprintf(&sb, "--- feature %q ---\n%s\n", d.Name, d.Capabilities)
	}

	sb.WriteString("\nPick the feature that should handle the user message and return the JSON.")
	return sb.String()
}

// speakerLabel maps a turn speaker to the label used in prompts.
func speakerLabel(s memory.Speaker) string {
	if s == memory.SpeakerAssistant {
		return "Assistant"
	}
	return "User"
}
