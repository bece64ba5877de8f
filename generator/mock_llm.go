package generator

import (
	"context"
	"strings"
)

// MockLLM answers without calling a model, for local runs and demos.
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	if strings.Contains(prompt.User, queryPlanInstruction) {
		return "introduction overview\nlatest developments", nil
	}

	task := firstLine(strings.TrimPrefix(prompt.User, "Current task: "))
	var sb strings.Builder
	sb.WriteString("# Presentation outline\n\n")
	sb.WriteString("## Overview\n\n")
	sb.WriteString("- Generated by the mock model; no provider was called.\n")
	sb.WriteString("- Task: " + task + "\n\n")
	sb.WriteString("Speaker notes: replace the mock provider with a real one to get content.\n")
	return sb.String(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
