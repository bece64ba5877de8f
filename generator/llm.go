package generator

import (
	"context"
	"fmt"
	"strings"
)

// LLMClient abstracts the chat model so agents can run against any provider or a mock.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings is the provider configuration shared by every implementation.
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// NewLLM builds the client for settings.Provider.
func NewLLM(settings LLMSettings) (LLMClient, error) {
	switch strings.ToLower(settings.Provider) {
	case "", "openai", "deepseek":
		return NewOpenAILLM(settings)
	case "anthropic":
		return NewAnthropicLLM(settings)
	case "cohere":
		return NewCohereLLM(settings)
	case "mock":
		return MockLLM{}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", settings.Provider)
	}
}
