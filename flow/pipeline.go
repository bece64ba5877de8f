// Package flow runs the presentation pipeline: research, then write, then
// persist. Each step is a typed stage on a flyt node; the nodes are connected
// in a flow that runs strictly in order, and the first failing stage ends the
// run with no partial output.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mark3labs/flyt"

	"ppt_generator/events"
	"ppt_generator/generator"
)

// Shared store keys.
const (
	keyTopic    = "topic"
	keyResearch = "research"
	keyDocument = "document"
	keyPath     = "path"
)

// Crew runs a group of agent tasks. *generator.Crew implements it.
type Crew interface {
	Kickoff(ctx context.Context, inputs generator.Inputs) (generator.CrewOutput, error)
}

// Saver persists the final markdown. *storage.Writer implements it.
type Saver interface {
	Save(ctx context.Context, topic, content string) (string, error)
}

// Request starts a run.
type Request struct {
	Topic     string
	SessionID string
}

// Output is everything a successful run produced.
type Output struct {
	Topic    string
	Research generator.CrewOutput
	Document generator.Document
	Path     string
	Duration time.Duration
}

// Pipeline wires the research crew, writer crew and saver together.
type Pipeline struct {
	research Crew
	write    Crew
	saver    Saver
	tracer   Tracer
	events   events.Publisher
	verbose  bool
	logger   *log.Logger
}

// Options are the optional collaborators of a pipeline.
type Options struct {
	Tracer  Tracer
	Events  events.Publisher
	Verbose bool
	Logger  *log.Logger
}

func NewPipeline(research, write Crew, saver Saver, opts Options) (*Pipeline, error) {
	if research == nil || write == nil || saver == nil {
		return nil, errors.New("pipeline needs a research crew, a writer crew and a saver")
	}
	p := &Pipeline{
		research: research,
		write:    write,
		saver:    saver,
		tracer:   opts.Tracer,
		events:   opts.Events,
		verbose:  opts.Verbose,
		logger:   opts.Logger,
	}
	if p.tracer == nil {
		p.tracer = NopTracer{}
	}
	if p.events == nil {
		p.events = events.Nop{}
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	return p, nil
}

func (p *Pipeline) infof(format string, args ...any) {
	if !p.verbose {
		return
	}
	p.logger.Printf("[flow] "+format, args...)
}

// Run executes research, write and persist for req.Topic.
func (p *Pipeline) Run(ctx context.Context, req Request) (Output, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return Output{}, ErrEmptyTopic
	}
	start := time.Now()
	trace := p.tracer.StartTrace(ctx, "presentation", map[string]any{"topic": topic, "session_id": req.SessionID})

	out, err := p.run(ctx, topic, trace)
	out.Duration = time.Since(start)
	if err != nil {
		trace.End(nil, err)
		p.infof("run for %q failed after %s: %v", topic, out.Duration.Round(time.Millisecond), err)
		p.publish(ctx, events.Event{
			Type:       events.TypeFailed,
			SessionID:  req.SessionID,
			Topic:      topic,
			Error:      err.Error(),
			DurationMS: out.Duration.Milliseconds(),
		})
		return Output{}, err
	}

	trace.End(map[string]any{"title": out.Document.Title, "path": out.Path}, nil)
	p.infof("run for %q finished in %s -> %s", topic, out.Duration.Round(time.Millisecond), out.Path)
	p.publish(ctx, events.Event{
		Type:       events.TypeGenerated,
		SessionID:  req.SessionID,
		Topic:      topic,
		Title:      out.Document.Title,
		Path:       out.Path,
		Chars:      len(out.Document.Markdown),
		DurationMS: out.Duration.Milliseconds(),
	})
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, topic string, trace Trace) (Output, error) {
	research := Stage[string, generator.CrewOutput]{
		Name:  "research",
		Input: func(s *flyt.SharedStore) (string, error) { return get[string](s, keyTopic) },
		Exec: func(ctx context.Context, topic string) (generator.CrewOutput, error) {
			p.infof("research crew started for %q", topic)
			return p.research.Kickoff(ctx, generator.Inputs{"topic": topic})
		},
		Output: func(s *flyt.SharedStore, out generator.CrewOutput) { s.Set(keyResearch, out) },
	}

	type draftInput struct {
		Topic string
		Plan  string
	}
	write := Stage[draftInput, generator.Document]{
		Name: "write",
		Input: func(s *flyt.SharedStore) (draftInput, error) {
			topic, err := get[string](s, keyTopic)
			if err != nil {
				return draftInput{}, err
			}
			research, err := get[generator.CrewOutput](s, keyResearch)
			if err != nil {
				return draftInput{}, err
			}
			return draftInput{Topic: topic, Plan: research.Raw}, nil
		},
		Exec: func(ctx context.Context, in draftInput) (generator.Document, error) {
			p.infof("writer crew started for %q", in.Topic)
			out, err := p.write.Kickoff(ctx, generator.Inputs{"topic": in.Topic, "plan": in.Plan})
			if err != nil {
				return generator.Document{}, err
			}
			return generator.PostProcess(out.Raw, in.Topic)
		},
		Output: func(s *flyt.SharedStore, doc generator.Document) { s.Set(keyDocument, doc) },
	}

	persist := Stage[generator.Document, string]{
		Name:  "persist",
		Input: func(s *flyt.SharedStore) (generator.Document, error) { return get[generator.Document](s, keyDocument) },
		Exec: func(ctx context.Context, doc generator.Document) (string, error) {
			return p.saver.Save(ctx, doc.Topic, doc.Markdown)
		},
		Output: func(s *flyt.SharedStore, path string) { s.Set(keyPath, path) },
	}

	researchNode := research.Node(trace)
	writeNode := write.Node(trace)
	persistNode := persist.Node(trace)

	f := flyt.NewFlow(researchNode)
	f.Connect(researchNode, flyt.DefaultAction, writeNode)
	f.Connect(writeNode, flyt.DefaultAction, persistNode)

	shared := flyt.NewSharedStore()
	shared.Set(keyTopic, topic)
	if err := f.Run(ctx, shared); err != nil {
		return Output{}, unwrapFlyt(err)
	}

	researchOut, err := get[generator.CrewOutput](shared, keyResearch)
	if err != nil {
		return Output{}, err
	}
	doc, err := get[generator.Document](shared, keyDocument)
	if err != nil {
		return Output{}, err
	}
	path, err := get[string](shared, keyPath)
	if err != nil {
		return Output{}, err
	}
	return Output{Topic: topic, Research: researchOut, Document: doc, Path: path}, nil
}

func (p *Pipeline) publish(ctx context.Context, e events.Event) {
	if err := p.events.Publish(context.WithoutCancel(ctx), e); err != nil {
		p.logger.Printf("[flow] publish %s: %v", e.Type, err)
	}
}

// unwrapFlyt drops flyt's run/exec wrapping so callers see which stage failed.
func unwrapFlyt(err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return err
}

// StageError reports which stage of a run failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }
