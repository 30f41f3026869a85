// Package chat implements the conversational fallback feature. It handles
// greetings, small talk, and anything the router could not confidently match
// to a task feature, replying in the configured persona's voice.
//
// By convention this feature is registered last so the registry's fallback
// points at it.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/bdobrica/Alfred/internal/alfred/feature"
	"github.com/bdobrica/Alfred/internal/alfred/memory"
	"github.com/bdobrica/Alfred/internal/alfred/oracle"
	"github.com/bdobrica/Alfred/internal/alfred/persona"
)

// replySchema validates the oracle's conversational JSON.
var replySchema = oracle.MustCompileSchema("chat-reply.json", `{
	"type": "object",
	"properties": {
		"response": {"type": "string", "minLength": 1}
	},
	"required": ["response"]
}`)

type replyDoc struct {
	Response string `json:"response"`
}

// Feature is the conversational fallback handler.
type Feature struct {
	provider oracle.Provider
	persona  persona.Persona
}

// New creates the chat feature with the given persona.
func New(provider oracle.Provider, p persona.Persona) *Feature {
	return &Feature{provider: provider, persona: p}
}

// Name implements feature.Feature.
func (f *Feature) Name() string { return "conversation" }

// Description implements feature.Feature.
func (f *Feature) Description() string {
	return "Handle greetings, small talk, and general questions"
}

// Capabilities implements feature.Feature.
func (f *Feature) Capabilities() string {
	return `This feature handles casual conversation and small talk only.

Examples of what this feature handles:
- "Hello", "Hi", "Hey"
- "How are you?", "What's up?"
- "What can you do?", "Help me"
- "Thanks!", "Thank you"
- Questions about the bot itself
- Casual banter with no task behind it

This is a FALLBACK feature — use it ONLY when the message is social or
conversational and matches no task feature.`
}

// Handle implements feature.Feature.
func (f *Feature) Handle(ctx context.Context, message string, turns []memory.Turn) (feature.Result, error) {
	system := f.persona.Personality + `

You are responding to the user. Keep your response:
- Under 2-3 sentences
- Friendly but concise
- Task-oriented (gently guide toward how you can help)
- Natural and conversational

Return ONLY valid JSON: {"response": "your reply here"}`

	history := make([]oracle.Message, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Speaker == memory.SpeakerAssistant {
			role = "assistant"
		}
		history = append(history, oracle.Message{Role: role, Content: t.Text})
	}

	raw, err := f.provider.Generate(ctx, oracle.Request{
		System:    system,
		History:   history,
		User:      message,
		ForceJSON: true,
		MaxTokens: 256,
	})
	if err != nil {
		return feature.Result{}, fmt.Errorf("chat: %w", err)
	}

	var doc replyDoc
	if err := oracle.DecodeJSON(replySchema, raw, &doc); err != nil {
		return feature.Result{}, fmt.Errorf("chat: %w", err)
	}

	return feature.Result{Reply: strings.TrimSpace(doc.Response)}, nil
}

// Intro returns the persona's introduction message, used by the transport
// when the bot announces itself.
func (f *Feature) Intro() string {
	return f.persona.Intro
}
