package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bdobrica/Alfred/internal/alfred/memory"
	"github.com/bdobrica/Alfred/internal/alfred/oracle"
	"github.com/bdobrica/Alfred/internal/alfred/persona"
)

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

func TestHandle_AnswersQuestion(t *testing.T) {
	p := &stubProvider{response: `{"response": "Photosynthesis converts light into chemical energy."}`}
	f := New(p, persona.Default())

	turns := []memory.Turn{
		{Speaker: memory.SpeakerUser, Text: "I'm studying biology"},
		{Speaker: memory.SpeakerAssistant, Text: "Happy to help!"},
	}
	res, err := f.Handle(context.Background(), "how does photosynthesis work?", turns)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Reply != "Photosynthesis converts light into chemical energy." {
		t.Errorf("Reply = %q", res.Reply)
	}
	if res.Deferred != nil {
		t.Error("search must never defer actions")
	}

	if !p.lastReq.ForceJSON {
		t.Error("request should force JSON output")
	}
	if !strings.Contains(p.lastReq.User, "User: I'm studying biology") {
		t.Errorf("prompt missing conversation context:\n%s", p.lastReq.User)
	}
	if !strings.Contains(p.lastReq.User, `"how does photosynthesis work?"`) {
		t.Errorf("prompt missing the question:\n%s", p.lastReq.User)
	}
	if !strings.Contains(p.lastReq.System, persona.Default().Personality[:20]) {
		t.Error("system prompt missing the persona block")
	}
}

func TestHandle_OracleFailure(t *testing.T) {
	f := New(&stubProvider{err: oracle.ErrUnavailable}, persona.Default())
	_, err := f.Handle(context.Background(), "why is the sky blue?", nil)
	if !errors.Is(err, oracle.ErrUnavailable) {
		t.Fatalf("Handle() error = %v, want ErrUnavailable", err)
	}
}

func TestHandle_MalformedOutput(t *testing.T) {
	f := New(&stubProvider{response: "the sky is blue because of Rayleigh scattering"}, persona.Default())
	_, err := f.Handle(context.Background(), "why is the sky blue?", nil)
	if !errors.Is(err, oracle.ErrMalformedOutput) {
		t.Fatalf("Handle() error = %v, want ErrMalformedOutput", err)
	}
}
