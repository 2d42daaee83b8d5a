// Package turn carries per-request hooks into the agent graph.
package turn

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// Observer receives the progress of one agent run. Calls are made from the
// graph's state handlers and never overlap.
type Observer interface {
	StepStarted(ctx context.Context, step int)
	AssistantMessage(ctx context.Context, step int, msg *schema.Message)
	ToolCallRequested(ctx context.Context, call schema.ToolCall)
	ToolCallCompleted(ctx context.Context, callID, toolName, output string)
	StepFinished(ctx context.Context, step int)
}

// Nop ignores every event.
type Nop struct{}

func (Nop) StepStarted(context.Context, int) {}
func (Nop) AssistantMessage(context.Context, int, *schema.Message) {}
func (Nop) ToolCallRequested(context.Context, schema.ToolCall) {}
func (Nop) ToolCallCompleted(context.Context, string, string, string) {}
func (Nop) StepFinished(context.Context, int) {}

type ctxKey struct{}

func WithObserver(ctx context.Context, o Observer) context.Context {
	return context.WithValue(ctx, ctxKey{}, o)
}

// FromContext returns the bound observer or Nop.
func FromContext(ctx context.Context) Observer {
	if o, ok := ctx.Value(ctxKey{}).(Observer); ok && o != nil {
		return o
	}
	return Nop{}
}
