package generator

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// TaskSink stores task output files.
type TaskSink interface {
	SaveTaskOutput(ctx context.Context, name, content string) (string, error)
}

// Crew is a named group of tasks run strictly in order. Each task sees the
// outputs of every task before it.
type Crew struct {
	Name    string
	Tasks   []Task
	Sink    TaskSink
	Verbose bool
}

func (c *Crew) infof(format string, args ...any) {
	if c.Verbose {
		log.Printf("[crew:"+c.Name+"] "+format, args...)
	}
}

// Kickoff runs every task. The first failing task aborts the run.
func (c *Crew) Kickoff(ctx context.Context, inputs Inputs) (CrewOutput, error) {
	if len(c.Tasks) == 0 {
		return CrewOutput{}, errors.New("crew " + c.Name + ": no tasks")
	}

	var out CrewOutput
	var prior []string
	for _, t := range c.Tasks {
		if t.Agent == nil {
			return CrewOutput{}, fmt.Errorf("crew %s: task %s has no agent", c.Name, t.Name)
		}
		desc, err := inputs.Interpolate(t.Description)
		if err != nil {
			return CrewOutput{}, fmt.Errorf("crew %s: task %s: %w", c.Name, t.Name, err)
		}
		expected, err := inputs.Interpolate(t.ExpectedOutput)
		if err != nil {
			return CrewOutput{}, fmt.Errorf("crew %s: task %s: %w", c.Name, t.Name, err)
		}

		agent, err := t.Agent.withInputs(inputs)
		if err != nil {
			return CrewOutput{}, fmt.Errorf("crew %s: task %s: %w", c.Name, t.Name, err)
		}

		c.infof("task %s started by %s", t.Name, agent.Role)
		raw, err := agent.Perform(ctx, Assignment{
			Description: desc,
			Expected:    expected,
			Prior:       prior,
			Fallback:    inputs["topic"],
		}, c.infof)
		if err != nil {
			return CrewOutput{}, fmt.Errorf("crew %s: task %s: %w", c.Name, t.Name, err)
		}

		res := TaskOutput{Task: t.Name, Agent: agent.Role, Raw: raw}
		if t.OutputFile != "" && c.Sink != nil {
			path, err := c.Sink.SaveTaskOutput(ctx, t.OutputFile, raw)
			if err != nil {
				return CrewOutput{}, fmt.Errorf("crew %s: task %s: save output: %w", c.Name, t.Name, err)
			}
			res.File = path
		}
		c.infof("task %s finished (%d chars)", t.Name, len(raw))

		out.Tasks = append(out.Tasks, res)
		prior = append(prior, raw)
	}
	out.Raw = out.Tasks[len(out.Tasks)-1].Raw
	return out, nil
}
