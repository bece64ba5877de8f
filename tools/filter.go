package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"ppt_generator/linkcheck"
)

// urlPattern matches http(s) URLs embedded in free text.
var urlPattern = regexp.MustCompile(`http[s]?://(?:[a-zA-Z]|[0-9]|[$-_@.&+]|[!*\\(\\),]|(?:%[0-9a-fA-F][0-9a-fA-F]))+`)

// BatchValidator returns the valid subset of urls.
type BatchValidator interface {
	ValidateBatch(ctx context.Context, urls []string) []linkcheck.Result
}

// ExtractURLs returns every URL found in text, in order, duplicates included.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// FilterText validates the URLs in text and replaces every invalid one with
// replacement. An empty replacement deletes the URL in place and leaves any
// surrounding punctuation or markdown syntax untouched, e.g. "[docs]()".
// Replacement is plain substring substitution: an invalid URL that is a prefix
// of a longer valid one is cut out of the longer one too.
func FilterText(ctx context.Context, v BatchValidator, text, replacement string) string {
	found := ExtractURLs(text)
	if len(found) == 0 {
		return text
	}

	unique := make([]string, 0, len(found))
	seen := make(map[string]bool, len(found))
	for _, u := range found {
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}

	valid := make(map[string]bool)
	for _, r := range v.ValidateBatch(ctx, unique) {
		valid[r.Requested] = true
	}

	out := text
	for _, u := range unique {
		if !valid[u] {
			out = strings.ReplaceAll(out, u, replacement)
		}
	}
	return out
}

// ValidatedSearch runs a search and strips invalid or stale links from the output.
type ValidatedSearch struct {
	searcher    Searcher
	validator   BatchValidator
	replacement string
}

func NewValidatedSearch(s Searcher, v BatchValidator, replacement string) *ValidatedSearch {
	return &ValidatedSearch{searcher: s, validator: v, replacement: replacement}
}

func (t *ValidatedSearch) Name() string { return "web_search" }

func (t *ValidatedSearch) Description() string {
	return "Search the internet and return results whose links are reachable and recent"
}

func (t *ValidatedSearch) Execute(ctx context.Context, input string) (string, error) {
	raw, err := NewSearchTool(t.searcher).Execute(ctx, input)
	if err != nil {
		return "", err
	}
	return FilterText(ctx, t.validator, raw, t.replacement), nil
}

// SingleValidator validates one URL.
type SingleValidator interface {
	Validate(ctx context.Context, url string) linkcheck.Result
}

// Validator is what LinkValidatorTool needs from linkcheck.
type Validator interface {
	SingleValidator
	BatchValidator
}

// LinkValidatorTool validates a single URL, or a whitespace separated list of
// URLs, and returns the results as JSON.
type LinkValidatorTool struct {
	validator Validator
}

func NewLinkValidatorTool(v Validator) *LinkValidatorTool {
	return &LinkValidatorTool{validator: v}
}

func (t *LinkValidatorTool) Name() string { return "link_validator" }

func (t *LinkValidatorTool) Description() string {
	return "A tool to validate URLs and check their content freshness"
}

func (t *LinkValidatorTool) Execute(ctx context.Context, input string) (string, error) {
	fields := strings.Fields(input)
	var payload any
	switch len(fields) {
	case 0:
		return "", fmt.Errorf("%s: no URL given", t.Name())
	case 1:
		payload = t.validator.Validate(ctx, fields[0])
	default:
		payload = t.validator.ValidateBatch(ctx, fields)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
