// Package render turns generated markdown into HTML for the browser preview.
package render

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// md renders GitHub flavoured markdown. Raw HTML in the model output is
// omitted, since goldmark's renderer is not put in unsafe mode.
var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// HTML converts markdown to an HTML fragment.
func HTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Slide is one level-two section of a presentation outline.
type Slide struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}

var slideHeading = regexp.MustCompile(`(?m)^##\s+(.+)$`)

// Slides splits an outline at its level-two headings. Text before the first
// heading (the title and any intro) is not a slide.
func Slides(src string) []Slide {
	locs := slideHeading.FindAllStringSubmatchIndex(src, -1)
	slides := make([]Slide, 0, len(locs))
	for i, loc := range locs {
		end := len(src)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		slides = append(slides, Slide{
			Title:    strings.TrimSpace(src[loc[2]:loc[3]]),
			Markdown: strings.TrimSpace(src[loc[0]:end]),
		})
	}
	return slides
}
