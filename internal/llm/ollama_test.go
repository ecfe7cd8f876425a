package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vigilstack/vigil-healer/internal/config"
)

func TestOllamaGenerate(t *testing.T) {
	var gotPath string
	var gotReq ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: `{"risk_score": 42}`, Done: true})
	}))
	defer server.Close()

	reasoner, err := NewOllamaReasoner(config.ReasonerConfig{
		BaseURL:     server.URL,
		Model:       "llama3.1",
		Temperature: 0.1,
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := reasoner.Generate(context.Background(), "assess this")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != `{"risk_score": 42}` {
		t.Errorf("response = %q", out)
	}
	if gotPath != "/api/generate" {
		t.Errorf("path = %q", gotPath)
	}
	if gotReq.Model != "llama3.1" || gotReq.Prompt != "assess this" || gotReq.Stream {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestOllamaGenerateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	reasoner, err := NewOllamaReasoner(config.ReasonerConfig{BaseURL: server.URL, Model: "llama3.1"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = reasoner.Generate(context.Background(), "assess this")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 500") || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("error = %q", err)
	}
}

func TestOllamaRequiresBaseURL(t *testing.T) {
	if _, err := NewOllamaReasoner(config.ReasonerConfig{Model: "llama3.1"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
}

func TestNewSelectsProvider(t *testing.T) {
	if _, err := New(config.ReasonerConfig{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"}); err != nil {
		t.Errorf("openai: %v", err)
	}
	if _, err := New(config.ReasonerConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "llama3.1"}); err != nil {
		t.Errorf("ollama: %v", err)
	}
	if _, err := New(config.ReasonerConfig{Provider: "watson"}); err == nil {
		t.Error("unknown provider must error")
	}
}

func TestOpenAIRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIReasoner(config.ReasonerConfig{Model: "gpt-4o-mini"}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
