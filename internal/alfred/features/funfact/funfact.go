// Package funfact implements the fun fact feature: a single oracle
// generation call that produces one interesting fact, loosely themed by the
// recent conversation when one exists.
package funfact

import (
	"context"
	"fmt"
	"strings"

	"github.com/bdobrica/Alfred/internal/alfred/feature"
	"github.com/bdobrica/Alfred/internal/alfred/memory"
	"github.com/bdobrica/Alfred/internal/alfred/oracle"
)

// factSchema validates the oracle's fun fact JSON.
var factSchema = oracle.MustCompileSchema("fun-fact.json", `{
	"type": "object",
	"properties": {
		"response": {"type": "string", "minLength": 1}
	},
	"required": ["response"]
}`)

type factDoc struct {
	Response string `json:"response"`
}

// Feature is the fun fact handler.
type Feature struct {
	provider oracle.Provider
}

// New creates the fun fact feature.
func New(provider oracle.Provider) *Feature {
	return &Feature{provider: provider}
}

// Name implements feature.Feature.
func (f *Feature) Name() string { return "funfact" }

// Description implements feature.Feature.
func (f *Feature) Description() string {
	return "Provide interesting random facts"
}

// Capabilities implements feature.Feature.
func (f *Feature) Capabilities() string {
	return `This feature can:
- Provide interesting random facts
- Share trivia and knowledge
- Entertain with fun information

Examples of what this feature handles:
- "Tell me a fun fact"
- "Give me an interesting fact"
- "Share a random fact"
- "Tell me something interesting"
- "Got any fun facts?"`
}

const funFactSystemPrompt = `You are a knowledgeable assistant. Provide a single interesting fun fact.

Requirements:
- Keep it brief (2-3 sentences max)
- Make it genuinely interesting and accurate
- Use a friendly, engaging tone
- Don't start with "Here's a fun fact" or similar — just state the fact
- If the conversation context suggests a topic, you may provide a related fact

Return ONLY valid JSON: {"response": "the fun fact here"}`

// Handle implements feature.Feature.
func (f *Feature) Handle(ctx context.Context, message string, turns []memory.Turn) (feature.Result, error) {
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
	fmt.Fprintf(&sb, "User message: %q\n\nGenerate the fun fact JSON.", message)

	raw, err := f.provider.Generate(ctx, oracle.Request{
		System:    funFactSystemPrompt,
		User:      sb.String(),
		ForceJSON: true,
		MaxTokens: 256,
	})
	if err != nil {
		return feature.Result{}, fmt.Errorf("funfact: %w", err)
	}

	var doc factDoc
	if err := oracle.DecodeJSON(factSchema, raw, &doc); err != nil {
		return feature.Result{}, fmt.Errorf("funfact: %w", err)
	}

	return feature.Result{Reply: doc.Response}, nil
}
