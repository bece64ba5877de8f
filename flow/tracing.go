package flow

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/henomis/langfuse-go"
	"github.com/henomis/langfuse-go/model"
)

// Tracer opens one trace per pipeline run.
type Tracer interface {
	StartTrace(ctx context.Context, name string, input any) Trace
}

// Trace collects the spans of one run.
type Trace interface {
	StartSpan(name string, input any) Span
	End(output any, err error)
}

type Span interface {
	End(output any, err error)
}

// NopTracer records nothing.
type NopTracer struct{}

func (NopTracer) StartTrace(context.Context, string, any) Trace { return nopTrace{} }

type nopTrace struct{}

func (nopTrace) StartSpan(string, any) Span { return nopSpan{} }
func (nopTrace) End(any, error)             {}

type nopSpan struct{}

func (nopSpan) End(any, error) {}

// LangfuseConfig holds the Langfuse project credentials.
type LangfuseConfig struct {
	Host      string
	PublicKey string
	SecretKey string
}

func (c LangfuseConfig) Enabled() bool {
	return c.Host != "" && c.PublicKey != "" && c.SecretKey != ""
}

// langfuse-go reads its credentials from the process environment when a client
// is created and has no other way to receive them. Client creation is
// serialised and each variable is set only for the duration of that call, then
// restored. Code elsewhere that reads LANGFUSE_* while a client is being
// created can observe the run's values.
var langfuseEnvMu sync.Mutex

// langfuseEnvChanges returns the LANGFUSE_* variables that differ from cfg.
// Keys that already come from the environment need no change at all.
func langfuseEnvChanges(cfg LangfuseConfig) map[string]string {
	changes := make(map[string]string)
	for k, v := range map[string]string{
		"LANGFUSE_HOST":       cfg.Host,
		"LANGFUSE_PUBLIC_KEY": cfg.PublicKey,
		"LANGFUSE_SECRET_KEY": cfg.SecretKey,
	} {
		if old, ok := os.LookupEnv(k); !ok || old != v {
			changes[k] = v
		}
	}
	return changes
}

func newLangfuseClient(ctx context.Context, cfg LangfuseConfig) *langfuse.Langfuse {
	langfuseEnvMu.Lock()
	defer langfuseEnvMu.Unlock()

	for k, v := range langfuseEnvChanges(cfg) {
		old, had := os.LookupEnv(k)
		os.Setenv(k, v)
		if had {
			defer os.Setenv(k, old)
		} else {
			defer os.Unsetenv(k)
		}
	}
	return langfuse.New(ctx)
}

// LangfuseTracer sends traces and spans to Langfuse. Failures to trace are
// logged and never fail the run.
//
// Creating a tracer briefly overwrites the process-wide LANGFUSE_HOST,
// LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY variables when cfg differs from
// them; see newLangfuseClient.
type LangfuseTracer struct {
	client *langfuse.Langfuse
	logger *log.Logger
}

func NewLangfuseTracer(ctx context.Context, cfg LangfuseConfig, logger *log.Logger) *LangfuseTracer {
	if logger == nil {
		logger = log.Default()
	}
	return &LangfuseTracer{client: newLangfuseClient(ctx, cfg), logger: logger}
}

func (t *LangfuseTracer) StartTrace(ctx context.Context, name string, input any) Trace {
	now := time.Now()
	tr, err := t.client.Trace(&model.Trace{
		Name:      name,
		Timestamp: &now,
		Input:     input,
	})
	if err != nil {
		t.logger.Printf("[trace] create trace %s: %v", name, err)
		return nopTrace{}
	}
	return &langfuseTrace{ctx: ctx, tracer: t, trace: tr}
}

type langfuseTrace struct {
	ctx    context.Context
	tracer *LangfuseTracer
	trace  *model.Trace
}

func (lt *langfuseTrace) StartSpan(name string, input any) Span {
	now := time.Now()
	span, err := lt.tracer.client.Span(&model.Span{
		TraceID:   lt.trace.ID,
		Name:      name,
		StartTime: &now,
		Input:     input,
	}, nil)
	if err != nil {
		lt.tracer.logger.Printf("[trace] create span %s: %v", name, err)
		return nopSpan{}
	}
	return &langfuseSpan{tracer: lt.tracer, span: span}
}

// End records the run's output on the trace and flushes pending events.
func (lt *langfuseTrace) End(output any, err error) {
	lt.trace.Output = output
	if err != nil {
		lt.trace.Output = map[string]any{"error": err.Error()}
	}
	if _, terr := lt.tracer.client.Trace(lt.trace); terr != nil {
		lt.tracer.logger.Printf("[trace] update trace: %v", terr)
	}
	lt.tracer.client.Flush(context.WithoutCancel(lt.ctx))
}

type langfuseSpan struct {
	tracer *LangfuseTracer
	span   *model.Span
}

func (ls *langfuseSpan) End(output any, err error) {
	now := time.Now()
	ls.span.EndTime = &now
	ls.span.Output = output
	if err != nil {
		ls.span.Level = model.ObservationLevelError
		ls.span.StatusMessage = err.Error()
	}
	if _, serr := ls.tracer.client.SpanEnd(ls.span); serr != nil {
		ls.tracer.logger.Printf("[trace] end span %s: %v", ls.span.Name, serr)
	}
}
