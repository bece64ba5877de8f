package generator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ppt_generator/tools"
)

const defaultMaxQueries = 3

var listMarker = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s*`)

// Agent is an LLM-backed actor with a persona and an optional tool chain.
// Tools run as a pipe: the first receives a search query and each later tool
// receives the output of the one before it.
type Agent struct {
	Name       string
	Role       string
	Goal       string
	Backstory  string
	Tools      []tools.Tool
	LLM        LLMClient
	MaxQueries int
}

// withInputs returns a copy of the agent with its persona interpolated.
func (a *Agent) withInputs(in Inputs) (*Agent, error) {
	cp := *a
	var err error
	if cp.Role, err = in.Interpolate(a.Role); err != nil {
		return nil, err
	}
	if cp.Goal, err = in.Interpolate(a.Goal); err != nil {
		return nil, err
	}
	if cp.Backstory, err = in.Interpolate(a.Backstory); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Assignment is a rendered task handed to an agent.
type Assignment struct {
	Description string
	Expected    string
	// Prior holds the outputs of earlier tasks in the same run.
	Prior []string
	// Fallback is searched when the model proposes no queries.
	Fallback string
}

// Perform runs one task: plan queries, run the tool chain for each, then ask
// the LLM for the final answer with the gathered notes and earlier task outputs.
func (a *Agent) Perform(ctx context.Context, job Assignment, logf func(string, ...any)) (string, error) {
	if a.LLM == nil {
		return "", errors.New("agent " + a.Name + ": llm client is required")
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	var notes []string
	if len(a.Tools) > 0 {
		queries, err := a.planQueries(ctx, job)
		if err != nil {
			return "", err
		}
		for _, q := range queries {
			logf("[%s] query %q", a.Name, q)
			notes = append(notes, a.runTools(ctx, q, logf)...)
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
	}

	out, err := a.LLM.Complete(ctx, BuildTaskPrompt(a, job.Description, job.Expected, job.Prior, notes))
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", a.Name, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("agent %s: model returned an empty answer", a.Name)
	}
	return out, nil
}

func (a *Agent) planQueries(ctx context.Context, job Assignment) ([]string, error) {
	limit := a.MaxQueries
	if limit <= 0 {
		limit = defaultMaxQueries
	}
	raw, err := a.LLM.Complete(ctx, BuildQueryPlanPrompt(a, job.Description, job.Prior, limit))
	if err != nil {
		return nil, fmt.Errorf("agent %s: plan queries: %w", a.Name, err)
	}
	queries := parseQueries(raw, limit)
	if len(queries) == 0 {
		fallback := job.Fallback
		if fallback == "" {
			fallback = job.Description
		}
		queries = []string{fallback}
	}
	return queries, nil
}

// parseQueries takes one query per line, dropping list markers and quotes.
func parseQueries(raw string, limit int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(raw, "\n") {
		q := listMarker.ReplaceAllString(strings.TrimSpace(line), "")
		q = strings.Trim(q, "\"'` ")
		if q == "" || seen[strings.ToLower(q)] {
			continue
		}
		seen[strings.ToLower(q)] = true
		out = append(out, q)
		if len(out) == limit {
			break
		}
	}
	return out
}

// runTools pipes query through the tool chain. A failing tool ends the chain
// for this query; its error becomes a note so the model knows the gap.
func (a *Agent) runTools(ctx context.Context, query string, logf func(string, ...any)) []string {
	var notes []string
	input := query
	for _, t := range a.Tools {
		out, err := t.Execute(ctx, input)
		if err != nil {
			logf("[%s] tool %s failed: %v", a.Name, t.Name(), err)
			notes = append(notes, fmt.Sprintf("Tool %s failed for %q: %v", t.Name(), query, err))
			break
		}
		notes = append(notes, fmt.Sprintf("Tool %s output for %q:\n%s", t.Name(), query, out))
		input = out
	}
	return notes
}
