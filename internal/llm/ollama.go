package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vigilstack/vigil-healer/internal/config"
)

// OllamaReasoner targets a local Ollama server's generate endpoint.
type OllamaReasoner struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	temperature float32
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaReasoner builds the client from configuration.
func NewOllamaReasoner(cfg config.ReasonerConfig) (*OllamaReasoner, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("ollama reasoner requires a base URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaReasoner{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Generate sends the prompt and returns the raw completion text.
func (r *OllamaReasoner) Generate(ctx context.Context, prompt string) (string, error) {
	payload := ollamaGenerateRequest{
		Model:  r.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": r.temperature,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var generated ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	return generated.Response, nil
}

// Provider identifies the backend kind.
func (r *OllamaReasoner) Provider() string { return "ollama" }

// Model returns the configured model name.
func (r *OllamaReasoner) Model() string { return r.model }
