package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ppt_generator/flow"
	"ppt_generator/generator"
	"ppt_generator/linkcheck"
	"ppt_generator/sessions"
	"ppt_generator/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubCrew struct {
	raw     string
	err     error
	panics  bool
	release chan struct{}
}

func (c stubCrew) Kickoff(ctx context.Context, _ generator.Inputs) (generator.CrewOutput, error) {
	if c.panics {
		panic("crew blew up")
	}
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return generator.CrewOutput{}, ctx.Err()
		}
	}
	return generator.CrewOutput{Raw: c.raw}, c.err
}

// fakePipelines requires an LLM key and builds pipelines from stub crews.
type fakePipelines struct {
	dir      string
	research stubCrew
	write    stubCrew
}

func (f *fakePipelines) Check(topic string, creds sessions.Credentials) error {
	if strings.TrimSpace(topic) == "" {
		return flow.ErrEmptyTopic
	}
	if creds.LLMAPIKey == "" {
		return flow.ErrMissingCredentials
	}
	return nil
}

func (f *fakePipelines) Build(context.Context, sessions.Credentials) (*flow.Pipeline, error) {
	return flow.NewPipeline(f.research, f.write, storage.NewWriter(f.dir, nil, false, nil), flow.Options{})
}

type fakeValidator struct{}

func (fakeValidator) Validate(_ context.Context, u string) linkcheck.Result {
	if strings.Contains(u, "ok") {
		return linkcheck.Result{Valid: true, URL: u}
	}
	return linkcheck.Result{Valid: false, Reason: "HTTP 404"}
}

func (v fakeValidator) ValidateBatch(ctx context.Context, urls []string) []linkcheck.Result {
	var out []linkcheck.Result
	for _, u := range urls {
		if r := v.Validate(ctx, u); r.Valid {
			out = append(out, r)
		}
	}
	return out
}

func newTestServer(t *testing.T, p *fakePipelines) (*gin.Engine, sessions.Store) {
	t.Helper()
	if p.dir == "" {
		p.dir = t.TempDir()
	}
	store := sessions.NewMemoryStore(time.Hour)
	srv, err := New(store, p, fakeValidator{}, Options{Timeout: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	return srv.Routes(), store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func createSession(t *testing.T, h http.Handler, body string) sessions.View {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/sessions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", rec.Code, rec.Body.String())
	}
	return decode[sessions.View](t, rec)
}

func TestIndexAndHealth(t *testing.T) {
	h, _ := newTestServer(t, &fakePipelines{})
	rec := do(t, h, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Presentation Outline Generator") {
		t.Fatalf("index: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
}

func TestSessionCredentials(t *testing.T) {
	h, _ := newTestServer(t, &fakePipelines{})
	sess := createSession(t, h, "")
	if sess.Status != sessions.StatusIdle || sess.LLMAPIKey != "" {
		t.Fatalf("session = %+v", sess)
	}

	rec := do(t, h, http.MethodPut, "/api/sessions/"+sess.ID+"/credentials", `{"llm_api_key":"sk-0123456789abcd"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("credentials: %d %s", rec.Code, rec.Body.String())
	}
	if v := decode[sessions.View](t, rec); v.LLMAPIKey != "****abcd" {
		t.Fatalf("view = %+v", v)
	}
	if strings.Contains(rec.Body.String(), "sk-0123456789abcd") {
		t.Fatal("raw key leaked in response")
	}

	if rec := do(t, h, http.MethodGet, "/api/sessions/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: %d", rec.Code)
	}
}

func TestGenerateAndDownload(t *testing.T) {
	p := &fakePipelines{
		research: stubCrew{raw: "plan"},
		write:    stubCrew{raw: "# Edge AI\n\n## What it is\n\nOn-device inference.\n\n## Why now\n\nCheaper NPUs."},
	}
	h, _ := newTestServer(t, p)
	sess := createSession(t, h, `{"llm_api_key":"sk-test"}`)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/generate", `{"topic":"Edge AI"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate: %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[generateResp](t, rec)
	if resp.Title != "Edge AI" || len(resp.Slides) != 2 || !strings.Contains(resp.HTML, "<h2") {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Session.Status != sessions.StatusDone || !strings.HasSuffix(resp.Path, "Edge_AI.md") {
		t.Fatalf("session = %+v path = %s", resp.Session, resp.Path)
	}

	rec = do(t, h, http.MethodGet, "/api/sessions/"+sess.ID+"/download", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download: %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "Edge_AI_presentation.md") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "# Edge AI") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestGenerateInputErrors(t *testing.T) {
	h, _ := newTestServer(t, &fakePipelines{})
	noKeys := createSession(t, h, "")
	withKeys := createSession(t, h, `{"llm_api_key":"sk-test"}`)

	cases := []struct {
		name string
		id   string
		body string
		code int
		msg  string
	}{
		{"empty topic", withKeys.ID, `{"topic":"  "}`, http.StatusBadRequest, "Please enter a topic"},
		{"missing keys", noKeys.ID, `{"topic":"Go"}`, http.StatusBadRequest, "Please enter both"},
		{"bad json", withKeys.ID, `{`, http.StatusBadRequest, ""},
		{"unknown session", "nope", `{"topic":"Go"}`, http.StatusNotFound, "session not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/sessions/"+tc.id+"/generate", tc.body)
			if rec.Code != tc.code || !strings.Contains(rec.Body.String(), tc.msg) {
				t.Fatalf("got %d %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGeneratePipelineFailure(t *testing.T) {
	p := &fakePipelines{research: stubCrew{err: errors.New("serper: 401 unauthorized")}}
	h, store := newTestServer(t, p)
	sess := createSession(t, h, `{"llm_api_key":"sk-test"}`)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/generate", `{"topic":"Go"}`)
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), "401") {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	got, _ := store.Get(context.Background(), sess.ID)
	if got.Status != sessions.StatusFailed || got.Result != nil {
		t.Fatalf("session = %+v", got)
	}
	if rec := do(t, h, http.MethodGet, "/api/sessions/"+sess.ID+"/download", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("download without result: %d", rec.Code)
	}
}

func TestGeneratePanicMarksSessionFailed(t *testing.T) {
	p := &fakePipelines{research: stubCrew{panics: true}}
	h, store := newTestServer(t, p)
	sess := createSession(t, h, `{"llm_api_key":"sk-test"}`)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/generate", `{"topic":"Go"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("panicking run: %d %s", rec.Code, rec.Body.String())
	}
	got, _ := store.Get(context.Background(), sess.ID)
	if got.Status != sessions.StatusFailed {
		t.Fatalf("session after panic = %+v", got)
	}

	p.research = stubCrew{raw: "plan"}
	p.write = stubCrew{raw: "# Go"}
	rec = do(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/generate", `{"topic":"Go"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("run after panic: %d %s", rec.Code, rec.Body.String())
	}
}

func TestGenerateConflict(t *testing.T) {
	release := make(chan struct{})
	p := &fakePipelines{
		research: stubCrew{raw: "plan", release: release},
		write:    stubCrew{raw: "# Go"},
	}
	h, store := newTestServer(t, p)
	sess := createSession(t, h, `{"llm_api_key":"sk-test"}`)

	var wg sync.WaitGroup
	wg.Add(1)
	var first *httptest.ResponseRecorder
	go func() {
		defer wg.Done()
		first = do(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/generate", `{"topic":"Go"}`)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, _ := store.Get(context.Background(), sess.ID)
		if got.Status == sessions.StatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first run never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec := do(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/generate", `{"topic":"Rust"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second run: %d %s", rec.Code, rec.Body.String())
	}

	close(release)
	wg.Wait()
	if first.Code != http.StatusOK {
		t.Fatalf("first run: %d %s", first.Code, first.Body.String())
	}
}

func TestValidate(t *testing.T) {
	h, _ := newTestServer(t, &fakePipelines{})

	rec := do(t, h, http.MethodPost, "/api/validate", `{"urls":["https://ok.example.com","https://dead.example.com"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch: %d", rec.Code)
	}
	batch := decode[struct {
		Results []linkcheck.Result `json:"results"`
	}](t, rec)
	if len(batch.Results) != 1 || batch.Results[0].URL != "https://ok.example.com" {
		t.Fatalf("results = %+v", batch.Results)
	}

	rec = do(t, h, http.MethodPost, "/api/validate", `{"url":"https://dead.example.com"}`)
	if single := decode[linkcheck.Result](t, rec); single.Valid || single.Reason != "HTTP 404" {
		t.Fatalf("single = %+v", single)
	}

	if rec := do(t, h, http.MethodPost, "/api/validate", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty: %d", rec.Code)
	}
}
