package render

import (
	"strings"
	"testing"
)

func TestHTML(t *testing.T) {
	out, err := HTML("# Deck\n\n- one\n- [x] done\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n<script>alert(1)</script>\n")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`<h1 id="deck">Deck</h1>`, "<li>one</li>", `type="checkbox"`, "<table>"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<script>") {
		t.Errorf("raw HTML was rendered:\n%s", out)
	}
}

func TestSlides(t *testing.T) {
	src := "# Title\n\nintro\n\n## Agenda\n- a\n\n### detail\n\n## Summary\n- b\n"
	got := Slides(src)
	if len(got) != 2 {
		t.Fatalf("got %d slides: %+v", len(got), got)
	}
	if got[0].Title != "Agenda" || got[0].Markdown != "## Agenda\n- a\n\n### detail" {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].Title != "Summary" || got[1].Markdown != "## Summary\n- b" {
		t.Fatalf("second = %+v", got[1])
	}
	if len(Slides("no headings")) != 0 {
		t.Fatal("expected no slides")
	}
}
