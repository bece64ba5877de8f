package flow

import (
	"context"
	"fmt"

	"github.com/mark3labs/flyt"
)

// Stage is one typed step of the pipeline. Input reads what the step needs
// from the shared store, Exec does the work and Output writes the result back
// for the next stage.
type Stage[I, O any] struct {
	Name   string
	Input  func(shared *flyt.SharedStore) (I, error)
	Exec   func(ctx context.Context, in I) (O, error)
	Output func(shared *flyt.SharedStore, out O)
}

// Node adapts the stage to a flyt node. Every Exec call is recorded as a span of trace.
func (s Stage[I, O]) Node(trace Trace) flyt.Node {
	return flyt.NewNode(
		flyt.WithPrepFunc(func(ctx context.Context, shared *flyt.SharedStore) (any, error) {
			in, err := s.Input(shared)
			if err != nil {
				return nil, &StageError{Stage: s.Name, Err: err}
			}
			return in, nil
		}),
		flyt.WithExecFunc(func(ctx context.Context, prepResult any) (any, error) {
			in, ok := prepResult.(I)
			if !ok {
				return nil, fmt.Errorf("%s: unexpected input %T", s.Name, prepResult)
			}
			span := trace.StartSpan(s.Name, in)
			out, err := s.Exec(ctx, in)
			span.End(out, err)
			if err != nil {
				return nil, &StageError{Stage: s.Name, Err: err}
			}
			return out, nil
		}),
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			out, ok := execResult.(O)
			if !ok {
				return "", fmt.Errorf("%s: unexpected output %T", s.Name, execResult)
			}
			s.Output(shared, out)
			return flyt.DefaultAction, nil
		}),
	)
}

// get reads a typed value from the shared store.
func get[T any](shared *flyt.SharedStore, key string) (T, error) {
	var zero T
	v, ok := shared.Get(key)
	if !ok {
		return zero, fmt.Errorf("%s not set", key)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s has type %T", key, v)
	}
	return t, nil
}
