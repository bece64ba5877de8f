// Package tools holds the capabilities research agents can call: web search,
// search with link validation, the link validator itself and a page reader.
//
// Every tool takes a text input and returns text, so agents can chain them.
package tools

import (
	"context"
	"fmt"
	"strings"
)

// Tool is a named capability an agent can execute with a text input.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, input string) (string, error)
}

// SearchResult is a single organic hit from a search backend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Date    string `json:"date,omitempty"`
}

// Searcher executes a query against a search backend.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// FormatResults renders results the way agents read them: one block per hit.
func FormatResults(query string, results []SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Search results for %q:\n", query))
	for _, r := range results {
		sb.WriteString("Title: " + r.Title + "\n")
		sb.WriteString("Link: " + r.URL + "\n")
		if r.Date != "" {
			sb.WriteString("Date: " + r.Date + "\n")
		}
		sb.WriteString("Snippet: " + r.Snippet + "\n")
		sb.WriteString("---\n")
	}
	return sb.String()
}

// SearchTool exposes a Searcher as a Tool.
type SearchTool struct {
	searcher Searcher
}

func NewSearchTool(s Searcher) *SearchTool {
	return &SearchTool{searcher: s}
}

func (t *SearchTool) Name() string { return "web_search" }

func (t *SearchTool) Description() string {
	return "Search the internet for a query and return titles, links and snippets"
}

func (t *SearchTool) Execute(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", fmt.Errorf("%s: query is empty", t.Name())
	}
	results, err := t.searcher.Search(ctx, query)
	if err != nil {
		return "", fmt.Errorf("%s: %w", t.Name(), err)
	}
	return FormatResults(query, results), nil
}
