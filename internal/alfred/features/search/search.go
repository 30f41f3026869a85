// Package search implements the factual question feature: research queries,
// explanations, and general knowledge lookups answered by the oracle in the
// configured persona's voice.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/bdobrica/Alfred/internal/alfred/feature"
	"github.com/bdobrica/Alfred/internal/alfred/memory"
	"github.com/bdobrica/Alfred/internal/alfred/oracle"
	"github.com/bdobrica/Alfred/internal/alfred/persona"
)

// answerSchema validates the oracle's answer JSON.
var answerSchema = oracle.MustCompileSchema("search-answer.json", `{
	"type": "object",
	"properties": {
		"response": {"type": "string", "minLength": 1}
	},
	"required": ["response"]
}`)

type answerDoc struct {
	Response string `json:"response"`
}

// Feature is the factual question handler.
type Feature struct {
	provider oracle.Provider
	persona  persona.Persona
}

// New creates the search feature.
func New(provider oracle.Provider, p persona.Persona) *Feature {
	return &Feature{provider: provider, persona: p}
}

// Name implements feature.Feature.
func (f *Feature) Name() string { return "search" }

// Description implements feature.Feature.
func (f *Feature) Description() string {
	return "Answer factual questions and general knowledge searches"
}

// Capabilities implements feature.Feature.
func (f *Feature) Capabilities() string {
	return `This feature handles factual questions, research queries, and general
knowledge lookups.

Examples of what this feature handles:

Factual / explanatory questions:
- "How does photosynthesis work?"
- "What is the difference between ML and AI?"
- "Explain quantum entanglement simply"
- "What causes a solar eclipse?"

How-to and practical questions:
- "How do I fix a merge conflict in git?"
- "What's the best way to study for finals?"
- "How do I make sourdough bread?"

Comparisons and recommendations:
- "What's the difference between Python and JavaScript?"
- "What are the pros and cons of intermittent fasting?"

Use this feature for any question that expects a factual, researched, or
informative answer, as opposed to casual small talk or task actions
(calendar, fun facts, etc.).`
}

// Handle implements feature.Feature.
func (f *Feature) Handle(ctx context.Context, message string, turns []memory.Turn) (feature.Result, error) {
	system := f.persona.Personality + `

The user is asking a question that requires a factual or researched answer.

Answer clearly and concisely:
- A few sentences for simple questions
- More detail for complex or multi-part questions
- Use plain prose, not bullet points, unless listing things is genuinely clearer
- Do not add filler like "Great question!" or "Certainly!"
- Just give the answer directly

Return ONLY valid JSON: {"response": "your answer here"}`

	var sb strings.Builder
	if len(turns) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, t := range turns {
			label := "User"
			if t.Speaker == memory.SpeakerAssistant {
				label = "Assistant"
			}
			fmt.Fprintf(&sb, "%s: %s\n", label, t.Text)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "User question: %q\n\nAnswer the question and return the JSON.", message)

	raw, err := f.provider.Generate(ctx, oracle.Request{
		System:    system,
		User:      sb.String(),
		ForceJSON: true,
		MaxTokens: 768,
	})
	if err != nil {
		return feature.Result{}, fmt.Errorf("search: %w", err)
	}

	var doc answerDoc
	if err := oracle.DecodeJSON(answerSchema, raw, &doc); err != nil {
		return feature.Result{}, fmt.Errorf("search: %w", err)
	}

	return feature.Result{Reply: strings.TrimSpace(doc.Response)}, nil
}
