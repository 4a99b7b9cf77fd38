package enrich

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"websentry/internal/types"
)

// LLMNarrator asks a local LLM (e.g., Ollama) to describe the alert
type LLMNarrator struct {
	url    string
	model  string
	client *http.Client
}

func NewLLMNarrator(url, model string) *LLMNarrator {
	if url == "" {
		url = "http://localhost:11434/api/generate"
	}
	if model == "" {
		model = "tinyllama"
	}
	return &LLMNarrator{
		url:   url,
		model: model,
		client: &http.Client{
			Timeout: 10 * time.Second, // Don't block too long
		},
	}
}

// OllamaRequest represents the payload for Ollama
type OllamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// OllamaResponse represents the response from Ollama
type OllamaResponse struct {
	Response string `json:"response"`
}

func (n *LLMNarrator) Narrate(a *types.Alert) (string, error) {
	reqBody := OllamaRequest{
		Model:  n.model,
		Prompt: n.buildPrompt(a),
		Stream: false,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal llm request: %w", err)
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewBuffer(jsonBody))
	if err != nil {
		// Soft failure: caller falls back to the template narrator
		return "", fmt.Errorf("llm connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm returned status: %s", resp.Status)
	}

	var llmResp OllamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&llmResp); err != nil {
		return "", fmt.Errorf("failed to decode llm response: %w", err)
	}

	return llmResp.Response, nil
}

func (n *LLMNarrator) buildPrompt(a *types.Alert) string {
	return fmt.Sprintf(`You are a security analyst. Explain the risk of this web attack in 1 sentence.
Attack: %s
Source IP: %s
Target URL: %s
Parameters: %s
Confidence: %d (%s)
Explanation:`, a.AttackType, a.SrcIP, a.URL, a.Params, a.Confidence, a.Priority)
}
