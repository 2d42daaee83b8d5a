package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
type AppState struct {
	ConversationID string
	History        []*schema.Message // mutated only inside Eino state handlers
	Steps          []Step
	ToolCallIDSeq  int // local sequence to synthesize tool_call_id when provider omits
	CeilingReached bool

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

// Step is one model invocation together with the tool round it triggered.
type Step struct {
	Number      int
	Text        string
	ToolCalls   []schema.ToolCall
	ToolResults []*schema.Message
}

// LastStep returns the most recent step or nil.
func (s *AppState) LastStep() *Step {
	if len(s.Steps) == 0 {
		return nil
	}
	return &s.Steps[len(s.Steps)-1]
}

// LastAnswer is the most recent non-empty assistant text.
func (s *AppState) LastAnswer() string {
	for i := len(s.Steps) - 1; i >= 0; i-- {
		if s.Steps[i].Text != "" {
			return s.Steps[i].Text
		}
	}
	return ""
}

// QueryInput represents the input for one chat turn: the prior transcript
// followed by the new user message.
type QueryInput struct {
	ConversationID string      `json:"conversation_id"`
	Messages       []UIMessage `json:"messages"`
}

// RunResult is the outcome of one agent run.
type RunResult struct {
	Message            *schema.Message
	Steps              int
	StepCeilingReached bool
	CostUSD            float64
}

const (
	ExtraStepCount          = "step_count"
	ExtraStepCeilingReached = "step_ceiling_reached"
	ExtraUsageCost          = "usage_cost"
	ExtraUsageCostTotal     = "usage_cost_total_usd"
)
