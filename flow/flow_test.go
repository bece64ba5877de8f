package flow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"ppt_generator/config"
	"ppt_generator/events"
	"ppt_generator/generator"
	"ppt_generator/linkcheck"
	"ppt_generator/sessions"
	"ppt_generator/storage"
	"ppt_generator/tools"
)

// fakeCrew records the inputs of every kickoff and answers with raw.
type fakeCrew struct {
	name   string
	raw    string
	err    error
	calls  *[]string
	inputs []generator.Inputs
}

func (f *fakeCrew) Kickoff(_ context.Context, in generator.Inputs) (generator.CrewOutput, error) {
	*f.calls = append(*f.calls, f.name)
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return generator.CrewOutput{}, f.err
	}
	return generator.CrewOutput{Raw: f.raw}, nil
}

type recordingTracer struct {
	mu    sync.Mutex
	spans []string
	ended []error
}

func (r *recordingTracer) StartTrace(context.Context, string, any) Trace { return r }

func (r *recordingTracer) StartSpan(name string, _ any) Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, name)
	return nopSpan{}
}

func (r *recordingTracer) End(_ any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, err)
}

type recordingPublisher struct {
	events []events.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) Close() error { return nil }

func TestPipelineRunsStagesInOrder(t *testing.T) {
	var calls []string
	research := &fakeCrew{name: "research", raw: "slide plan", calls: &calls}
	write := &fakeCrew{name: "write", raw: "```markdown\n# Rust in 2025\n\n## Why now\n```", calls: &calls}
	dir := t.TempDir()
	tracer := &recordingTracer{}
	pub := &recordingPublisher{}

	p, err := NewPipeline(research, write, storage.NewWriter(dir, nil, false, nil), Options{Tracer: tracer, Events: pub})
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.Run(context.Background(), Request{Topic: "  Rust lang ", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if strings.Join(calls, ",") != "research,write" {
		t.Fatalf("calls = %v", calls)
	}
	if research.inputs[0]["topic"] != "Rust lang" {
		t.Fatalf("research inputs = %v", research.inputs[0])
	}
	if write.inputs[0]["topic"] != "Rust lang" || write.inputs[0]["plan"] != "slide plan" {
		t.Fatalf("write inputs = %v", write.inputs[0])
	}
	if out.Document.Title != "Rust in 2025" || strings.Contains(out.Document.Markdown, "```") {
		t.Fatalf("document = %+v", out.Document)
	}
	if out.Path != filepath.Join(dir, "Rust_lang.md") || out.Research.Raw != "slide plan" {
		t.Fatalf("output = %+v", out)
	}
	data, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != out.Document.Markdown {
		t.Fatalf("file = %q", data)
	}

	if strings.Join(tracer.spans, ",") != "research,write,persist" {
		t.Fatalf("spans = %v", tracer.spans)
	}
	if len(tracer.ended) != 1 || tracer.ended[0] != nil {
		t.Fatalf("trace ends = %v", tracer.ended)
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.TypeGenerated || pub.events[0].SessionID != "s1" {
		t.Fatalf("events = %+v", pub.events)
	}
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	var calls []string
	boom := errors.New("search quota exceeded")
	research := &fakeCrew{name: "research", err: boom, calls: &calls}
	write := &fakeCrew{name: "write", raw: "# never", calls: &calls}
	dir := t.TempDir()
	pub := &recordingPublisher{}

	p, _ := NewPipeline(research, write, storage.NewWriter(dir, nil, false, nil), Options{Events: pub})
	_, err := p.Run(context.Background(), Request{Topic: "Go"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "research" {
		t.Fatalf("stage error = %#v", err)
	}
	if strings.Join(calls, ",") != "research" {
		t.Fatalf("calls = %v", calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "Go.md")); !os.IsNotExist(err) {
		t.Fatalf("output file written after failure: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.TypeFailed || !strings.Contains(pub.events[0].Error, "quota") {
		t.Fatalf("events = %+v", pub.events)
	}
}

func TestPipelineRejectsEmptyWriterOutput(t *testing.T) {
	var calls []string
	p, _ := NewPipeline(
		&fakeCrew{name: "research", raw: "plan", calls: &calls},
		&fakeCrew{name: "write", raw: "   ", calls: &calls},
		storage.NewWriter(t.TempDir(), nil, false, nil),
		Options{},
	)
	_, err := p.Run(context.Background(), Request{Topic: "Go"})
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "write" {
		t.Fatalf("err = %v", err)
	}
}

func TestPipelineIgnoresPublishErrors(t *testing.T) {
	var calls []string
	p, _ := NewPipeline(
		&fakeCrew{name: "research", raw: "plan", calls: &calls},
		&fakeCrew{name: "write", raw: "# Go", calls: &calls},
		storage.NewWriter(t.TempDir(), nil, false, nil),
		Options{Events: &recordingPublisher{err: errors.New("kafka down")}},
	)
	if _, err := p.Run(context.Background(), Request{Topic: "Go"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestPipelineEmptyTopic(t *testing.T) {
	var calls []string
	p, _ := NewPipeline(
		&fakeCrew{name: "research", calls: &calls},
		&fakeCrew{name: "write", calls: &calls},
		storage.NewWriter(t.TempDir(), nil, false, nil),
		Options{},
	)
	if _, err := p.Run(context.Background(), Request{Topic: " "}); !errors.Is(err, ErrEmptyTopic) {
		t.Fatalf("err = %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("crews ran: %v", calls)
	}
}

func TestBuilderCheck(t *testing.T) {
	b := &Builder{Config: config.Config{
		LLM:    config.LLMConfig{Provider: "openai"},
		Search: config.SearchConfig{Provider: "serper"},
	}}
	cases := []struct {
		name  string
		topic string
		creds sessions.Credentials
		want  error
	}{
		{"empty topic", "", sessions.Credentials{LLMAPIKey: "a", SearchAPIKey: "b"}, ErrEmptyTopic},
		{"no keys", "Go", sessions.Credentials{}, ErrMissingCredentials},
		{"llm key only", "Go", sessions.Credentials{LLMAPIKey: "a"}, ErrMissingCredentials},
		{"both keys", "Go", sessions.Credentials{LLMAPIKey: "a", SearchAPIKey: "b"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := b.Check(tc.topic, tc.creds); !errors.Is(err, tc.want) {
				t.Fatalf("Check = %v, want %v", err, tc.want)
			}
		})
	}

	b.Config.LLM.APIKey = "from-config"
	b.Config.Search.APIKey = "from-config"
	if err := b.Check("Go", sessions.Credentials{}); err != nil {
		t.Fatalf("config keys not used: %v", err)
	}

	keyless := &Builder{Config: config.Config{
		LLM:    config.LLMConfig{Provider: "mock"},
		Search: config.SearchConfig{Provider: "duckduckgo"},
	}}
	if err := keyless.Check("Go", sessions.Credentials{}); err != nil {
		t.Fatalf("keyless providers: %v", err)
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(ErrEmptyTopic); got != "Please enter a topic" {
		t.Fatal(got)
	}
	if got := UserMessage(ErrMissingCredentials); !strings.HasPrefix(got, "Please enter both") {
		t.Fatal(got)
	}
	if got := UserMessage(errors.New("boom")); got != "boom" {
		t.Fatal(got)
	}
}

type staticSearcher struct{ results []tools.SearchResult }

func (s staticSearcher) Search(context.Context, string) ([]tools.SearchResult, error) {
	return s.results, nil
}

// rejectAll marks every URL invalid, so search output reaches the agents
// without links and the page reader has nothing to fetch.
type rejectAll struct{}

func (rejectAll) ValidateBatch(context.Context, []string) []linkcheck.Result { return nil }

func TestBuilderRunsMockPipeline(t *testing.T) {
	dir := t.TempDir()
	var gotKey string
	b := &Builder{
		Config: config.Config{
			LLM:    config.LLMConfig{Provider: "mock"},
			Search: config.SearchConfig{Provider: "serper", APIKey: "config-key"},
		},
		Validator: rejectAll{},
		Writer:    storage.NewWriter(dir, nil, false, nil),
		NewSearcher: func(provider, key string, n int) (tools.Searcher, error) {
			gotKey = key
			return staticSearcher{results: []tools.SearchResult{
				{Title: "Stale", URL: "https://old.example.com/post", Snippet: "old news"},
			}}, nil
		},
	}

	p, err := b.Build(context.Background(), sessions.Credentials{SearchAPIKey: "session-key"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if gotKey != "session-key" {
		t.Fatalf("search key = %q", gotKey)
	}
	out, err := p.Run(context.Background(), Request{Topic: "Edge AI"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Document.Title != "Presentation outline" {
		t.Fatalf("title = %q", out.Document.Title)
	}
	for _, name := range []string{generator.SlidesFile, generator.DepthFile} {
		if _, err := os.Stat(filepath.Join(dir, storage.ResearchDir, name)); err != nil {
			t.Fatalf("research file %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "Edge_AI.md")); err != nil {
		t.Fatalf("output: %v", err)
	}
}

func TestNewSearcher(t *testing.T) {
	if _, err := NewSearcher("serper", "", 5); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("serper without key: %v", err)
	}
	if s, err := NewSearcher("duckduckgo", "", 5); err != nil || s == nil {
		t.Fatalf("duckduckgo: %v", err)
	}
	if _, err := NewSearcher("bing", "k", 5); err == nil {
		t.Fatal("expected unsupported provider error")
	}
}

func TestLangfuseEnvIsRestored(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "https://env.example.com")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	os.Unsetenv("LANGFUSE_PUBLIC_KEY")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk-run")

	cfg := LangfuseConfig{Host: "https://run.example.com", PublicKey: "pk-run", SecretKey: "sk-run"}
	changes := langfuseEnvChanges(cfg)
	if len(changes) != 2 || changes["LANGFUSE_HOST"] != cfg.Host || changes["LANGFUSE_PUBLIC_KEY"] != cfg.PublicKey {
		t.Fatalf("changes = %v", changes)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if newLangfuseClient(ctx, cfg) == nil {
		t.Fatal("nil client")
	}
	if got := os.Getenv("LANGFUSE_HOST"); got != "https://env.example.com" {
		t.Fatalf("LANGFUSE_HOST = %q", got)
	}
	if _, ok := os.LookupEnv("LANGFUSE_PUBLIC_KEY"); ok {
		t.Fatal("LANGFUSE_PUBLIC_KEY left set")
	}
	if got := os.Getenv("LANGFUSE_SECRET_KEY"); got != "sk-run" {
		t.Fatalf("LANGFUSE_SECRET_KEY = %q", got)
	}

	same := LangfuseConfig{Host: "https://env.example.com", SecretKey: "sk-run"}
	os.Setenv("LANGFUSE_PUBLIC_KEY", "")
	if changes := langfuseEnvChanges(same); len(changes) != 0 {
		t.Fatalf("matching env changed: %v", changes)
	}
}
