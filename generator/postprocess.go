package generator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	titlePattern = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n(.*?)\n?```$")
)

// PostProcess turns the writer crew's raw output into a Document: wrapping
// code fences are removed and the first level-one heading becomes the title.
func PostProcess(raw, topic string) (Document, error) {
	md := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(md); m != nil {
		md = strings.TrimSpace(m[1])
	}
	if md == "" {
		return Document{}, errors.New("model returned empty markdown")
	}

	title := extractTitle(md)
	if title == "" {
		title = strings.TrimSpace(topic)
	}
	return Document{Topic: topic, Title: title, Markdown: md}, nil
}

func extractTitle(md string) string {
	m := titlePattern.FindStringSubmatch(md)
	if len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}
