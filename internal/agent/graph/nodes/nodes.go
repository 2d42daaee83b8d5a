package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/telo-ai/server/internal/agent/graph/conversations"
	"github.com/telo-ai/server/internal/agent/graph/prompts"
	"github.com/telo-ai/server/internal/agent/model"
	"github.com/telo-ai/server/internal/agent/turn"
	errx "github.com/telo-ai/server/internal/core/error"
	logx "github.com/telo-ai/server/pkg/logger"
)

// NewInputConverterPreHandler creates the pre-handler for InputConverter node
func NewInputConverterPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		if s.ConversationID == "" {
			s.ConversationID = in.ConversationID
		}
		s.Steps = nil
		s.CeilingReached = false
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewInputConverterNode renders the system prompt and converts the client transcript.
func NewInputConverterNode(mm *conversations.MessagesManager, promptData prompts.AgentPromptData) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		systemPrompt, err := prompts.RenderAgentSystem(ctx, promptData)
		if err != nil {
			return nil, fmt.Errorf("render agent system prompt: %w", err)
		}
		return mm.BuildContext(systemPrompt, input.Messages)
	})
}

// NewAgentChatModelPreHandler appends the node input to the running history and
// hands the whole history to the model.
func NewAgentChatModelPreHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		state.History = append(state.History, in...)

		step := len(state.Steps) + 1
		turn.FromContext(ctx).StepStarted(ctx, step)
		logx.Ctx(ctx).Debug().
			Str("conversation_id", state.ConversationID).
			Int("step", step).
			Int("history_len", len(state.History)).
			Msg("AI thinking...")

		return state.History, nil
	}
}

// NewAgentChatModelPostHandler records the step, prices it and reports it to the observer.
func NewAgentChatModelPostHandler(modelName string, policy StopPolicy) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return nil, recordUpstream(ctx, errx.UpstreamInference(errors.New("model returned no message")))
		}
		log := logx.Ctx(ctx)

		annotateUsage(ctx, out, state, modelName)

		// Normalize tool calls: some providers may omit tool_call IDs.
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		state.Steps = append(state.Steps, model.Step{
			Number:    len(state.Steps) + 1,
			Text:      out.Content,
			ToolCalls: append([]schema.ToolCall(nil), out.ToolCalls...),
		})
		step := state.LastStep()

		// An empty final turn at the ceiling still has to say something.
		earlier := state.LastAnswer()
		finalAtCeiling := len(out.ToolCalls) == 0 && policy.CeilingReached(state.Steps)
		if finalAtCeiling {
			state.CeilingReached = true
			if strings.TrimSpace(out.Content) == "" && earlier == "" {
				out.Content = CeilingNotice
				step.Text = CeilingNotice
			}
		}

		if strings.TrimSpace(out.Content) != "" || len(out.ToolCalls) > 0 {
			state.History = append(state.History, out)
		}

		obs := turn.FromContext(ctx)
		obs.AssistantMessage(ctx, step.Number, out)
		for _, tc := range out.ToolCalls {
			obs.ToolCallRequested(ctx, tc)
		}

		if len(out.ToolCalls) > 0 {
			log.Debug().Int("step", step.Number).Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			obs.StepFinished(ctx, step.Number)
			log.Debug().Int("step", step.Number).Int("text_len", len(out.Content)).Msg("AI response ready")
		}

		if finalAtCeiling && strings.TrimSpace(out.Content) == "" {
			final := *out
			final.Content = earlier
			out = &final
		}
		setRunExtra(out, state)
		return out, nil
	}
}

// NewAgentChatModelCondition routes model output: tool calls are executed, a
// finished answer ends the run, anything else is nudged to continue.
func NewAgentChatModelCondition(policy StopPolicy) func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		if len(input.ToolCalls) > 0 {
			return NodeToolExecutor, nil
		}

		var stop bool
		var steps int
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			stop = policy.ShouldStop(state.Steps)
			steps = len(state.Steps)
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}

		if stop {
			logx.Ctx(ctx).Debug().Int("steps", steps).Msg("Stop condition met - routing to end")
			return compose.END, nil
		}
		logx.Ctx(ctx).Debug().Int("steps", steps).Msg("Answer not final - asking agent to continue")
		return NodeContinue, nil
	}
}

// NewContinueNode feeds a notice back to the model after a premature answer.
func NewContinueNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) ([]*schema.Message, error) {
		return []*schema.Message{schema.SystemMessage(ContinueNotice)}, nil
	})
}

// NewToolExecutorPreHandler creates the pre-handler for ToolExecutor node
func NewToolExecutorPreHandler() func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		names := make([]string, 0, len(in.ToolCalls))
		for _, tc := range in.ToolCalls {
			names = append(names, tc.Function.Name)
		}
		logx.Ctx(ctx).Debug().
			Str("conversation_id", state.ConversationID).
			Int("step", len(state.Steps)).
			Strs("tools", names).
			Msg("Tool execution attempt")
		return in, nil
	}
}

// NewToolExecutorPostHandler attaches tool results to the current step.
func NewToolExecutorPostHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		step := state.LastStep()
		if step == nil {
			return out, nil
		}
		names := make(map[string]string, len(step.ToolCalls))
		for _, tc := range step.ToolCalls {
			names[tc.ID] = tc.Function.Name
		}
		step.ToolResults = out

		obs := turn.FromContext(ctx)
		for _, msg := range out {
			if msg == nil {
				continue
			}
			name := msg.ToolName
			if name == "" {
				name = names[msg.ToolCallID]
			}
			obs.ToolCallCompleted(ctx, msg.ToolCallID, name, msg.Content)
		}
		obs.StepFinished(ctx, step.Number)
		return out, nil
	}
}

// NewToolExecutorCondition sends tool results back to the model unless the step ceiling is reached.
func NewToolExecutorCondition(policy StopPolicy) func(context.Context, []*schema.Message) (string, error) {
	return func(ctx context.Context, _ []*schema.Message) (string, error) {
		var stop bool
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			stop = policy.ShouldStop(state.Steps)
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}
		if stop {
			logx.Ctx(ctx).Warn().Int("max_steps", policy.MaxSteps).Msg("Step ceiling reached - finalizing")
			return NodeFinalizer, nil
		}
		return NodeAgentChatModel, nil
	}
}

// NewFinalizerNode ends a run stopped by the ceiling with the last answer the agent gave.
func NewFinalizerNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ []*schema.Message) (*schema.Message, error) {
		var out *schema.Message
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.CeilingReached = true
			text := state.LastAnswer()
			if text == "" {
				text = CeilingNotice
				obs := turn.FromContext(ctx)
				notice := schema.AssistantMessage(text, nil)
				obs.AssistantMessage(ctx, len(state.Steps), notice)
				obs.StepFinished(ctx, len(state.Steps))
			}
			out = schema.AssistantMessage(text, nil)
			setRunExtra(out, state)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return out, nil
	})
}

// annotateUsage computes usage cost for one model call and accumulates it.
func annotateUsage(ctx context.Context, out *schema.Message, state *model.AppState, modelName string) {
	if out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	cost := model.NewUsageCost(modelName, out.ResponseMeta.Usage)
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra[model.ExtraUsageCost] = cost

	// Accumulate only total cost into state
	state.TotalCostUSD += cost.TotalCost

	logx.Ctx(ctx).Debug().
		Str("conversation_id", state.ConversationID).
		Str("node", NodeAgentChatModel).
		Str("model", modelName).
		Int("prompt_tokens", cost.PromptTokens).
		Int("completion_tokens", cost.CompletionTokens).
		Int("total_tokens", cost.TotalTokens).
		Float64("total_cost_usd", cost.TotalCost).
		Float64("run_cost_usd", state.TotalCostUSD).
		Msg("LLM usage")
}

func setRunExtra(out *schema.Message, state *model.AppState) {
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra[model.ExtraStepCount] = len(state.Steps)
	out.Extra[model.ExtraStepCeilingReached] = state.CeilingReached
	out.Extra[model.ExtraUsageCostTotal] = state.TotalCostUSD
}
