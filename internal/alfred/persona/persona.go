// Package persona loads Alfred's identity configuration: the bot name, the
// personality block injected into conversational prompts, and the intro
// message sent on first contact.
//
// The configuration lives in a YAML file so operators can re-skin the bot
// without rebuilding it. Missing fields fall back to the embedded defaults.
package persona

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona holds the bot identity used across features.
type Persona struct {
	// Name is the bot's display name, used in prompts and the intro.
	Name string `yaml:"name"`

	// Personality is the system-context block injected into conversational
	// oracle prompts.
	Personality string `yaml:"personality"`

	// Intro is the greeting sent when the bot announces itself.
	Intro string `yaml:"intro"`
}

// Default returns the embedded persona used when no file is configured.
func Default() Persona {
	return Persona{
		Name:        defaultName,
		Personality: defaultPersonality,
		Intro:       defaultIntro,
	}
}

// Load reads and parses a persona YAML file. Fields left empty in the file
// fall back to the embedded defaults, so a file may override just the name.
func Load(path string) (Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("persona: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a persona YAML document and applies defaults.
func Parse(data []byte) (Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("persona: parse: %w", err)
	}

	def := Default()
	if strings.TrimSpace(p.Name) == "" {
		p.Name = def.Name
	}
	if strings.TrimSpace(p.Personality) == "" {
		p.Personality = def.Personality
	}
	if strings.TrimSpace(p.Intro) == "" {
		p.Intro = def.Intro
	}
	return p, nil
}

const defaultName = "Alfred"

const defaultPersonality = `You are Alfred, a helpful personal assistant reachable via chat.

YOUR PERSONALITY:
- Professional but friendly
- Concise and to-the-point
- Helpful and proactive
- Task-focused — brief small talk is fine, then gently redirect to being helpful

YOUR CAPABILITIES:
- Manage the user's calendar (create, modify, view events)
- Share interesting fun facts
- Have brief conversations and small talk

CONVERSATION GUIDELINES:
- Greetings: respond warmly but briefly, offer to help
- Small talk: engage briefly, then ask how you can assist
- Questions about capabilities: explain what you can do
- Unclear requests: ask clarifying questions
- Deep philosophical conversations: politely decline and redirect

TONE:
- Use contractions (I'm, you're, let's) to sound natural
- Keep responses under 2-3 sentences when possible
- Be warm but efficient`

const defaultIntro = `Hello! I'm Alfred, your personal assistant.

Here's what I can do:
📅 Manage your calendar (create, modify, view events)
💡 Share fun facts
💬 Chat and answer questions

Just tell me what you need!`
