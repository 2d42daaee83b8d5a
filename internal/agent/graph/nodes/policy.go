package nodes

import (
	"unicode/utf8"

	"github.com/telo-ai/server/internal/agent/model"
)

const (
	DefaultMaxSteps       = 15
	DefaultMinSteps       = 3
	DefaultAnswerMinChars = 200
)

// StopPolicy decides when the research loop ends.
type StopPolicy struct {
	MaxSteps       int
	MinSteps       int
	AnswerMinChars int
}

// NewStopPolicy normalizes cfg: a non-positive ceiling uses the default and
// the floor never exceeds the ceiling.
func NewStopPolicy(cfg model.AgentLoopConfig) StopPolicy {
	p := StopPolicy{MaxSteps: cfg.MaxSteps, MinSteps: cfg.MinSteps, AnswerMinChars: cfg.AnswerMinChars}
	if p.MaxSteps <= 0 {
		p.MaxSteps = DefaultMaxSteps
	}
	if p.MinSteps < 0 {
		p.MinSteps = 0
	}
	if p.MinSteps > p.MaxSteps {
		p.MinSteps = p.MaxSteps
	}
	if p.AnswerMinChars < 0 {
		p.AnswerMinChars = 0
	}
	return p
}

// ShouldStop: always at the ceiling, never below the floor, otherwise once the
// last step is a substantial answer with no tool calls.
func (p StopPolicy) ShouldStop(steps []model.Step) bool {
	n := len(steps)
	if n >= p.MaxSteps {
		return true
	}
	if n < p.MinSteps || n == 0 {
		return false
	}
	return p.answered(steps[n-1])
}

// CeilingReached reports a stop forced by the ceiling rather than by an answer.
func (p StopPolicy) CeilingReached(steps []model.Step) bool {
	n := len(steps)
	return n >= p.MaxSteps && !p.answered(steps[n-1])
}

func (p StopPolicy) answered(s model.Step) bool {
	return len(s.ToolCalls) == 0 && utf8.RuneCountInString(s.Text) > p.AnswerMinChars
}
