package generator

import (
	"fmt"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Prompt is one request to the LLM.
type Prompt struct {
	System  string
	User    string
	History []Message
}

// Message is an earlier turn replayed to the model.
type Message struct {
	Role    string
	Content string
}

// queryPlanInstruction marks the prompt that asks an agent for search queries.
const queryPlanInstruction = "Reply with the web search queries you would run for this task, one per line, at most"

// BuildAgentSystem renders the persona every prompt of an agent starts with.
func BuildAgentSystem(a *Agent) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are %s. %s\n", a.Role, a.Backstory))
	sb.WriteString(fmt.Sprintf("Your personal goal is: %s\n", a.Goal))
	sb.WriteString("Write in English. Do not invent sources or links; only cite links that appear in your research notes.")
	return sb.String()
}

// BuildQueryPlanPrompt asks the agent which searches it needs for the task.
func BuildQueryPlanPrompt(a *Agent, description string, prior []string, limit int) Prompt {
	var sb strings.Builder
	sb.WriteString("Current task: " + description + "\n\n")
	if len(prior) > 0 {
		sb.WriteString("Work done so far:\n")
		sb.WriteString(truncate(strings.Join(prior, "\n\n"), 3000))
		sb.WriteString("\n\n")
	}
	sb.WriteString(fmt.Sprintf("%s %d. Do not number them or add any other text.", queryPlanInstruction, limit))
	return Prompt{System: BuildAgentSystem(a), User: sb.String()}
}

// BuildTaskPrompt asks the agent for its final answer to a task.
func BuildTaskPrompt(a *Agent, description, expected string, prior, notes []string) Prompt {
	var sb strings.Builder
	sb.WriteString("Current task: " + description + "\n\n")
	sb.WriteString("This is the expected criteria for your final answer: " + expected + "\n\n")
	if len(prior) > 0 {
		sb.WriteString("This is the context you're working with:\n")
		sb.WriteString(strings.Join(prior, "\n\n"))
		sb.WriteString("\n\n")
	}
	if len(notes) > 0 {
		sb.WriteString("Research notes gathered with your tools:\n")
		sb.WriteString(strings.Join(notes, "\n\n"))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Begin! Return only your final answer, formatted as markdown.")
	return Prompt{System: BuildAgentSystem(a), User: sb.String()}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + " [TRUNCATED]"
}
