package conversations

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/telo-ai/server/internal/agent/graph/tools"
	"github.com/telo-ai/server/internal/agent/model"
	errx "github.com/telo-ai/server/internal/core/error"
)

type MessagesManager struct {
	sessions   model.SessionRepository
	maxHistory int
}

func NewMessagesManager(sessions model.SessionRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		sessions:   sessions,
		maxHistory: config.MaxHistoryMessages,
	}
}

// Validate checks that a turn ends with a non-empty user message.
func (cm *MessagesManager) Validate(messages []model.UIMessage) error {
	if len(messages) == 0 {
		return errx.BadRequest("messages must not be empty")
	}
	last := messages[len(messages)-1]
	if last.Role != model.RoleUser {
		return errx.BadRequest("last message must come from the user")
	}
	if strings.TrimSpace(last.Text()) == "" {
		return errx.BadRequest("user message has no text")
	}
	return nil
}

// BuildContext prefixes the converted transcript with the system prompt.
func (cm *MessagesManager) BuildContext(systemPrompt string, messages []model.UIMessage) ([]*schema.Message, error) {
	if err := cm.Validate(messages); err != nil {
		return nil, err
	}
	history := trimTail(ToSchemaMessages(messages), cm.maxHistory)

	out := make([]*schema.Message, 0, len(history)+1)
	out = append(out, schema.SystemMessage(systemPrompt))
	return append(out, history...), nil
}

func (cm *MessagesManager) SaveSession(ctx context.Context, id string, messages []model.UIMessage) error {
	return cm.sessions.Save(ctx, id, messages)
}

func (cm *MessagesManager) LoadSession(ctx context.Context, id string) (*model.Session, error) {
	return cm.sessions.Load(ctx, id)
}

// ToSchemaMessages converts client messages into model messages. An assistant
// message becomes one model message per step; finished tool parts turn into a
// tool call plus its result, unfinished ones are dropped.
func ToSchemaMessages(messages []model.UIMessage) []*schema.Message {
	var out []*schema.Message
	for _, m := range messages {
		switch m.Role {
		case model.RoleUser:
			if text := m.Text(); strings.TrimSpace(text) != "" {
				out = append(out, schema.UserMessage(text))
			}
		case model.RoleSystem:
			if text := m.Text(); strings.TrimSpace(text) != "" {
				out = append(out, schema.SystemMessage(text))
			}
		case model.RoleAssistant:
			out = append(out, assistantSteps(m.Parts)...)
		}
	}
	return out
}

type stepBlock struct {
	text    strings.Builder
	calls   []schema.ToolCall
	results []*schema.Message
}

func assistantSteps(parts []model.UIPart) []*schema.Message {
	var (
		out []*schema.Message
		cur = &stepBlock{}
	)
	flush := func() {
		text := cur.text.String()
		switch {
		case len(cur.calls) > 0:
			out = append(out, schema.AssistantMessage(text, cur.calls))
			out = append(out, cur.results...)
		case strings.TrimSpace(text) != "":
			out = append(out, schema.AssistantMessage(text, nil))
		}
		cur = &stepBlock{}
	}

	for _, p := range parts {
		switch {
		case p.Type == model.PartStepStart:
			flush()
		case p.Type == model.PartText:
			cur.text.WriteString(p.Text)
		case p.IsTool() && p.State.Terminal() && p.ToolCallID != "":
			args := string(p.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			cur.calls = append(cur.calls, schema.ToolCall{
				ID:       p.ToolCallID,
				Type:     "function",
				Function: schema.FunctionCall{Name: p.ToolName(), Arguments: args},
			})
			cur.results = append(cur.results, schema.ToolMessage(toolResult(p), p.ToolCallID, schema.WithToolName(p.ToolName())))
		}
	}
	flush()
	return out
}

func toolResult(p model.UIPart) string {
	if p.State == model.ToolOutputError {
		b, _ := json.Marshal(tools.Failure{Error: tools.FailureDetail{Code: errx.CodeToolExecution, Message: p.ErrorText}})
		return string(b)
	}
	if len(p.Output) == 0 {
		return "null"
	}
	return string(p.Output)
}

// ====================== Helper function ======================
// trimTail keeps the last maxMessages messages. A tool result whose call was
// cut off is dropped as well, since providers reject orphaned results.
func trimTail(messages []*schema.Message, maxMessages int) []*schema.Message {
	start := 0
	if maxMessages > 0 && len(messages) > maxMessages {
		start = len(messages) - maxMessages
	}
	for start < len(messages) && messages[start].Role == schema.Tool {
		start++
	}
	result := make([]*schema.Message, len(messages)-start)
	copy(result, messages[start:])
	return result
}
