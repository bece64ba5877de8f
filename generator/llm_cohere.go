package generator

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

// CohereLLM implements LLMClient with the Cohere chat API.
type CohereLLM struct {
	Model  string
	client *cohereclient.Client
}

func NewCohereLLM(cfg LLMSettings) (*CohereLLM, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("cohere api key missing; provide llm.api_key or COHERE_API_KEY")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	httpClient := &http.Client{Timeout: 120 * time.Second}
	client := cohereclient.NewClient(
		cohereclient.WithToken(cfg.APIKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	if cfg.BaseURL != "" {
		client = cohereclient.NewClient(
			cohereclient.WithToken(cfg.APIKey),
			cohereclient.WithHTTPClient(httpClient),
			cohereclient.WithBaseURL(cfg.BaseURL),
		)
	}
	return &CohereLLM{Model: cfg.Model, client: client}, nil
}

func (c *CohereLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	// History is folded into the message; agents send at most a few turns.
	var sb strings.Builder
	for _, h := range prompt.History {
		sb.WriteString(h.Role + ": " + h.Content + "\n\n")
	}
	sb.WriteString(prompt.User)

	req := &cohere.ChatRequest{
		Message: sb.String(),
		Model:   cohere.String(c.Model),
	}
	if prompt.System != "" {
		req.Preamble = cohere.String(prompt.System)
	}

	resp, err := c.client.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Text == "" {
		return "", errors.New("cohere: empty response")
	}
	return resp.Text, nil
}
