// Package ai wraps the Gemini text-generation API behind a reply generator
// that never fails: provider errors are converted into fixed fallback
// strings so message handling is never interrupted.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultAPIURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent"

// Fixed user-facing fallback strings returned instead of errors.
const (
	FallbackEmpty = "Desculpe, não consegui gerar uma resposta no momento."
	FallbackError = "Desculpe, ocorreu um erro ao processar sua mensagem."
)

const maxOutputTokens = 1000

// Turn is one prior exchange in a conversation, serialized into the prompt
// as a "role: content" line.
type Turn struct {
	Role    string
	Content string
}

// Client calls the Gemini generateContent endpoint.
type Client struct {
	apiKey string
	apiURL string
	http   *http.Client
}

// New creates a Gemini client. An empty apiKey leaves the client in a
// degraded "not configured" state where every call returns the fallback.
// An empty apiURL selects the production endpoint.
func New(apiKey, apiURL string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		apiKey: apiKey,
		apiURL: apiURL,
		http:   &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateReply generates a reply to message under the given system prompt.
// It never returns an error: any provider failure yields a fallback string.
func (c *Client) GenerateReply(ctx context.Context, message, systemPrompt string, temperature float64) string {
	return c.GenerateWithHistory(ctx, message, systemPrompt, nil, temperature)
}

// GenerateWithHistory is GenerateReply with prior conversation turns
// serialized into the prompt.
func (c *Client) GenerateWithHistory(ctx context.Context, message, systemPrompt string, history []Turn, temperature float64) string {
	if !c.Configured() {
		slog.Warn("ai: generate called without an API key configured")
		return FallbackError
	}

	prompt := composePrompt(message, systemPrompt, history)
	text, err := c.generate(ctx, prompt, temperature)
	if err != nil {
		slog.Error("ai: generation failed", "error", err)
		return FallbackError
	}
	if text == "" {
		slog.Warn("ai: provider returned no candidates")
		return FallbackEmpty
	}
	return text
}

func composePrompt(message, systemPrompt string, history []Turn) string {
	var b strings.Builder
	if systemPrompt != "" {
		b.WriteString(systemPrompt)
		b.WriteString("\n\n")
	}
	if len(history) > 0 {
		b.WriteString("Histórico da conversa:\n")
		for _, t := range history {
			b.WriteString(t.Role)
			b.WriteString(": ")
			b.WriteString(t.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Mensagem atual: ")
	b.WriteString(message)
	b.WriteString("\n\nResponda de forma apropriada:")
	return b.String()
}

func (c *Client) generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
		GenerationConfig: generationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxOutputTokens,
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"?key="+c.apiKey, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return strings.TrimSpace(genResp.Candidates[0].Content.Parts[0].Text), nil
}
