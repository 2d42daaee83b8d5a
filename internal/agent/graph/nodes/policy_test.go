package nodes

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"

	"github.com/telo-ai/server/internal/agent/model"
)

func steps(last model.Step, n int) []model.Step {
	out := make([]model.Step, n)
	for i := range out {
		out[i] = model.Step{Number: i + 1, ToolCalls: []schema.ToolCall{{ID: "c"}}}
	}
	if n > 0 {
		last.Number = n
		out[n-1] = last
	}
	return out
}

func TestStopPolicy_ShouldStop(t *testing.T) {
	p := NewStopPolicy(model.AgentLoopConfig{MaxSteps: 15, MinSteps: 3, AnswerMinChars: 200})
	long := model.Step{Text: strings.Repeat("a", 201)}
	exact := model.Step{Text: strings.Repeat("a", 200)}
	short := model.Step{Text: "ok"}
	toolCall := model.Step{Text: strings.Repeat("a", 300), ToolCalls: []schema.ToolCall{{ID: "x"}}}

	cases := []struct {
		name string
		in   []model.Step
		want bool
	}{
		{"no steps", nil, false},
		{"long answer below floor", steps(long, 2), false},
		{"long answer at floor", steps(long, 3), true},
		{"exactly threshold is not enough", steps(exact, 5), false},
		{"short answer", steps(short, 5), false},
		{"tool calls keep going", steps(toolCall, 14), false},
		{"ceiling", steps(toolCall, 15), true},
		{"past ceiling", steps(short, 16), true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, p.ShouldStop(c.in), c.name)
	}
}

func TestStopPolicy_CountsRunes(t *testing.T) {
	p := NewStopPolicy(model.AgentLoopConfig{MaxSteps: 15, MinSteps: 1, AnswerMinChars: 10})
	assert.False(t, p.ShouldStop(steps(model.Step{Text: "ééééééééé"}, 1)))
	assert.True(t, p.ShouldStop(steps(model.Step{Text: "ééééééééééé"}, 1)))
}

func TestStopPolicy_CeilingReached(t *testing.T) {
	p := NewStopPolicy(model.AgentLoopConfig{MaxSteps: 4, MinSteps: 3, AnswerMinChars: 5})
	assert.False(t, p.CeilingReached(steps(model.Step{Text: "short"}, 3)))
	assert.True(t, p.CeilingReached(steps(model.Step{Text: "short"}, 4)))
	assert.False(t, p.CeilingReached(steps(model.Step{Text: "a long enough answer"}, 4)))
}

func TestNewStopPolicy_Normalizes(t *testing.T) {
	p := NewStopPolicy(model.AgentLoopConfig{MaxSteps: 0, MinSteps: 40, AnswerMinChars: -1})
	assert.Equal(t, DefaultMaxSteps, p.MaxSteps)
	assert.Equal(t, DefaultMaxSteps, p.MinSteps)
	assert.Equal(t, 0, p.AnswerMinChars)
}
