package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// completionResponse builds a minimal chat completions payload.
func completionResponse(content string) string {
	return `{"choices": [{"message": {"role": "assistant", "content": ` +
		string(mustJSON(content)) + `}, "finish_reason": "stop"}]}`
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func TestGenerate_Success(t *testing.T) {
	var gotReq oaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionResponse(`{"feature": "calendar", "confidence": 0.9}`)))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model"})
	got, err := p.Generate(context.Background(), Request{
		System: "route messages",
		History: []Message{
			{Role: "user", Content: "earlier message"},
			{Role: "assistant", Content: "earlier reply"},
		},
		User:      "schedule a meeting",
		ForceJSON: true,
		MaxTokens: 128,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != `{"feature": "calendar", "confidence": 0.9}` {
		t.Errorf("Generate() = %q", got)
	}

	if gotReq.Model != "test-model" {
		t.Errorf("model = %q, want test-model", gotReq.Model)
	}
	if gotReq.MaxTokens != 128 {
		t.Errorf("max_tokens = %d, want 128", gotReq.MaxTokens)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", gotReq.ResponseFormat)
	}
	// system + 2 history + user
	if len(gotReq.Messages) != 4 {
		t.Fatalf("sent %d messages, want 4", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[3].Role != "user" {
		t.Errorf("message roles = [%s ... %s], want system first and user last",
			gotReq.Messages[0].Role, gotReq.Messages[3].Role)
	}
}

func TestGenerate_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Generate(context.Background(), Request{User: "hi"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Generate() error = %v, want ErrRateLimited", err)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Generate() error = %v, should also wrap ErrUnavailable", err)
	}
}

func TestGenerate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "model not found", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Generate(context.Background(), Request{User: "hi"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Generate() error = %v, want ErrUnavailable", err)
	}
}

func TestGenerate_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Generate(context.Background(), Request{User: "hi"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Generate() error = %v, want ErrUnavailable", err)
	}
}

func TestGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(completionResponse("late")))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := p.Generate(context.Background(), Request{User: "hi"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Generate() error = %v, want ErrUnavailable", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	p := New(Config{APIKey: "k"}).(*openAIProvider)
	if p.cfg.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", p.cfg.BaseURL, defaultBaseURL)
	}
	if p.cfg.Model != defaultModel {
		t.Errorf("Model = %q, want %q", p.cfg.Model, defaultModel)
	}
	if p.cfg.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v, want %v", p.cfg.Timeout, defaultTimeout)
	}
}
