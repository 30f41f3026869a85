package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bdobrica/Alfred/internal/alfred/feature"
	"github.com/bdobrica/Alfred/internal/alfred/memory"
	"github.com/bdobrica/Alfred/internal/alfred/oracle"
)

// stubProvider returns a canned response (or error) and records the last
// request for prompt assertions.
type stubProvider struct {
	response string
	err      error
	lastReq  oracle.Request
}

func (s *stubProvider) Generate(ctx context.Context, req oracle.Request) (string, error) {
	s.lastReq = req
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func testDescriptors() []feature.Descriptor {
	return []feature.Descriptor{
		{Name: "calendar", Capabilities: "manage calendar events", Rank: 0},
		{Name: "funfact", Capabilities: "share fun facts", Rank: 1},
		{Name: "conversation", Capabilities: "small talk", Rank: 2},
	}
}

func TestClassify_SelectsFeature(t *testing.T) {
	p := &stubProvider{response: `{"feature": "calendar", "confidence": 0.92, "reasoning": "mentions a meeting"}`}
	c := NewClassifier(p, 0)

	d, err := c.Classify(context.Background(), "@alice", "schedule a meeting tomorrow", nil, testDescriptors())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Selected == nil || d.Selected.Name != "calendar" {
		t.Fatalf("Selected = %v, want calendar", d.Selected)
	}
	if d.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", d.Confidence)
	}
	if !p.lastReq.ForceJSON {
		t.Error("routing request should force JSON output")
	}
}

func TestClassify_ConfidenceGating(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		wantRouted bool
	}{
		{"above threshold", `{"feature": "calendar", "confidence": 0.61}`, true},
		{"at threshold", `{"feature": "calendar", "confidence": 0.6}`, true},
		{"below threshold", `{"feature": "calendar", "confidence": 0.59}`, false},
		{"zero confidence", `{"feature": "calendar", "confidence": 0}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&stubProvider{response: tt.response}, 0)
			d, err := c.Classify(context.Background(), "@alice", "msg", nil, testDescriptors())
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if routed := d.Selected != nil; routed != tt.wantRouted {
				t.Errorf("routed = %v, want %v (confidence %v)", routed, tt.wantRouted, d.Confidence)
			}
		})
	}
}

func TestClassify_UnknownFeatureTreatedAsNone(t *testing.T) {
	p := &stubProvider{response: `{"feature": "weather", "confidence": 0.95}`}
	c := NewClassifier(p, 0)

	d, err := c.Classify(context.Background(), "@alice", "what's the weather", nil, testDescriptors())
	if err != nil {
		t.Fatalf("Classify() error = %v, want nil (unknown name is not an error)", err)
	}
	if d.Selected != nil {
		t.Errorf("Selected = %v, want nil for unregistered feature name", d.Selected)
	}
}

func TestClassify_NullFeature(t *testing.T) {
	p := &stubProvider{response: `{"feature": null, "confidence": 0.9}`}
	c := NewClassifier(p, 0)

	d, err := c.Classify(context.Background(), "@alice", "gibberish", nil, testDescriptors())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Selected != nil {
		t.Errorf("Selected = %v, want nil", d.Selected)
	}
}

func TestClassify_OracleFailure(t *testing.T) {
	p := &stubProvider{err: oracle.ErrUnavailable}
	c := NewClassifier(p, 0)

	_, err := c.Classify(context.Background(), "@alice", "msg", nil, testDescriptors())
	if !errors.Is(err, oracle.ErrUnavailable) {
		t.Fatalf("Classify() error = %v, want ErrUnavailable", err)
	}
}

func TestClassify_MalformedOutput(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"not JSON", "I think calendar is the best fit"},
		{"missing confidence", `{"feature": "calendar"}`},
		{"confidence out of range", `{"feature": "calendar", "confidence": 1.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&stubProvider{response: tt.response}, 0)
			_, err := c.Classify(context.Background(), "@alice", "msg", nil, testDescriptors())
			if !errors.Is(err, oracle.ErrMalformedOutput) {
				t.Fatalf("Classify() error = %v, want ErrMalformedOutput", err)
			}
		})
	}
}

func TestBuildRoutingPrompt(t *testing.T) {
	turns := []memory.Turn{
		{Speaker: memory.SpeakerUser, Text: "what's on my calendar?"},
		{Speaker: memory.SpeakerAssistant, Text: "You have a standup at 9."},
	}

	prompt := buildRoutingPrompt("move it to 10", turns, testDescriptors())

	if !strings.Contains(prompt, "User: what's on my calendar?") {
		t.Errorf("prompt missing user turn:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Assistant: You have a standup at 9.") {
		t.Errorf("prompt missing assistant turn:\n%s", prompt)
	}
	if !strings.Contains(prompt, `User message: "move it to 10"`) {
		t.Errorf("prompt missing current message:\n%s", prompt)
	}
	for _, name := range []string{"calendar", "funfact", "conversation"} {
		if !strings.Contains(prompt, `feature "`+name+`"`) {
			t.Errorf("prompt missing capability block for %q:\n%s", name, prompt)
		}
	}
}

func TestNewClassifier_DefaultThreshold(t *testing.T) {
	c := NewClassifier(&stubProvider{}, 0)
	if c.Threshold() != DefaultConfidenceThreshold {
		t.Errorf("Threshold() = %v, want %v", c.Threshold(), DefaultConfidenceThreshold)
	}
	c = NewClassifier(&stubProvider{}, 0.8)
	if c.Threshold() != 0.8 {
		t.Errorf("Threshold() = %v, want 0.8", c.Threshold())
	}
}
