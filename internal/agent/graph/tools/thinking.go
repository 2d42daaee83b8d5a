package tools

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/telo-ai/server/internal/agent/graph/thoughts"
	"github.com/telo-ai/server/internal/agent/model"
)

var errNoThoughtLog = errors.New("no thought log bound to this conversation")

type SequentialThinkingInput struct {
	model.Thought
	// NextThoughtNeeded shadows the embedded field so a missing value can be told apart from false.
	NextThoughtNeeded *bool `json:"nextThoughtNeeded"`
}

func (in *SequentialThinkingInput) Validate() error {
	if err := requireText("thought", in.Thought.Thought); err != nil {
		return err
	}
	if err := requireText("stage", in.Stage); err != nil {
		return err
	}
	if in.ThoughtNumber < 1 || in.TotalThoughts < 1 {
		return errors.New("thoughtNumber and totalThoughts must be positive")
	}
	if in.NextThoughtNeeded == nil {
		return errors.New("nextThoughtNeeded is required")
	}
	return nil
}

type SequentialThinkingOutput struct {
	Status            string `json:"status"`
	StoredThoughts    int    `json:"storedThoughts"`
	NextThoughtNeeded bool   `json:"nextThoughtNeeded"`
}

type EmptyInput struct{}

type ClearThoughtsOutput struct {
	Status string `json:"status"`
}

func logFrom(ctx context.Context) (*thoughts.Log, error) {
	if l := thoughts.FromContext(ctx); l != nil {
		return l, nil
	}
	return nil, errNoThoughtLog
}

func stringList(desc string) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.Array, Desc: desc, ElemInfo: &schema.ParameterInfo{Type: schema.String}}
}

func newSequentialThinkingTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolSequentialThinking,
			Desc: "Record a step in a structured sequential thinking process.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"thought":               {Type: schema.String, Desc: "The content of this thinking step", Required: true},
				"thoughtNumber":         {Type: schema.Integer, Desc: "Position of this thought, starting at 1", Required: true},
				"totalThoughts":         {Type: schema.Integer, Desc: "Estimated number of thoughts in the chain", Required: true},
				"nextThoughtNeeded":     {Type: schema.Boolean, Desc: "Whether another thought should follow", Required: true},
				"stage":                 {Type: schema.String, Desc: "Thinking stage, e.g. analysis, planning, synthesis", Required: true},
				"tags":                  stringList("Optional keywords for this thought"),
				"axiomsUsed":            stringList("Optional principles relied on"),
				"assumptionsChallenged": stringList("Optional assumptions questioned"),
			}),
		},
		func(ctx context.Context, in *SequentialThinkingInput) (*SequentialThinkingOutput, error) {
			l, err := logFrom(ctx)
			if err != nil {
				return nil, err
			}
			t := in.Thought
			t.NextThoughtNeeded = *in.NextThoughtNeeded
			return &SequentialThinkingOutput{
				Status:            "ok",
				StoredThoughts:    l.Add(t),
				NextThoughtNeeded: t.NextThoughtNeeded,
			}, nil
		},
	)
}

func newSummarizeThinkingTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolSummarizeThinking,
			Desc: "Generate a structured summary of all recorded thoughts.",
		},
		func(ctx context.Context, _ *EmptyInput) (*model.ThoughtSummary, error) {
			l, err := logFrom(ctx)
			if err != nil {
				return nil, err
			}
			sum := l.Summarize()
			return &sum, nil
		},
	)
}

func newClearThoughtsTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolClearThoughts,
			Desc: "Clear all stored thoughts.",
		},
		func(ctx context.Context, _ *EmptyInput) (*ClearThoughtsOutput, error) {
			l, err := logFrom(ctx)
			if err != nil {
				return nil, err
			}
			l.Clear()
			return &ClearThoughtsOutput{Status: "cleared"}, nil
		},
	)
}
