package conversations

import (
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telo-ai/server/internal/agent/model"
	errx "github.com/telo-ai/server/internal/core/error"
)

func userMsg(text string) model.UIMessage {
	return model.UIMessage{ID: "u", Role: model.RoleUser, Parts: []model.UIPart{{Type: model.PartText, Text: text}}}
}

func TestValidate(t *testing.T) {
	mm := NewMessagesManager(nil, model.ConversationConfig{})

	assert.Equal(t, errx.CodeBadRequest, errx.CodeOf(mm.Validate(nil)))
	assert.Equal(t, errx.CodeBadRequest, errx.CodeOf(mm.Validate([]model.UIMessage{userMsg("  ")})))
	assert.Equal(t, errx.CodeBadRequest, errx.CodeOf(mm.Validate([]model.UIMessage{
		userMsg("halo"), {Role: model.RoleAssistant, Parts: []model.UIPart{{Type: model.PartText, Text: "hai"}}},
	})))
	assert.NoError(t, mm.Validate([]model.UIMessage{userMsg("perda retribusi")}))
}

func TestToSchemaMessages_AssistantStepsWithTools(t *testing.T) {
	assistant := model.UIMessage{ID: "a", Role: model.RoleAssistant, Parts: []model.UIPart{
		{Type: model.PartStepStart},
		{Type: model.PartReasoning, Text: "thinking"},
		{Type: "tool-documentSearch", ToolCallID: "call_1", State: model.ToolOutputAvailable,
			Input: json.RawMessage(`{"query":"perda"}`), Output: json.RawMessage(`{"data":[]}`)},
		{Type: "tool-documentContentSearch", ToolCallID: "call_2", State: model.ToolOutputError,
			Input: json.RawMessage(`{"query":"x","filename":"a.pdf"}`), ErrorText: "timeout"},
		{Type: "tool-sequentialThinking", ToolCallID: "call_3", State: model.ToolInputAvailable},
		{Type: model.PartStepStart},
		{Type: model.PartText, Text: "Jawaban akhir."},
	}}

	got := ToSchemaMessages([]model.UIMessage{userMsg("cari perda"), assistant, userMsg("lanjut")})
	require.Len(t, got, 6)

	assert.Equal(t, schema.User, got[0].Role)
	assert.Equal(t, schema.Assistant, got[1].Role)
	require.Len(t, got[1].ToolCalls, 2)
	assert.Equal(t, "documentSearch", got[1].ToolCalls[0].Function.Name)
	assert.Equal(t, `{"query":"perda"}`, got[1].ToolCalls[0].Function.Arguments)

	assert.Equal(t, schema.Tool, got[2].Role)
	assert.Equal(t, "call_1", got[2].ToolCallID)
	assert.Equal(t, `{"data":[]}`, got[2].Content)

	assert.Equal(t, "call_2", got[3].ToolCallID)
	assert.JSONEq(t, `{"error":{"code":"tool_execution_error","message":"timeout"}}`, got[3].Content)

	assert.Equal(t, "Jawaban akhir.", got[4].Content)
	assert.Empty(t, got[4].ToolCalls)
	assert.Equal(t, "lanjut", got[5].Content)
}

func TestBuildContext_PrefixesSystemPromptAndTrims(t *testing.T) {
	mm := NewMessagesManager(nil, model.ConversationConfig{MaxHistoryMessages: 3})
	msgs := []model.UIMessage{userMsg("1"), userMsg("2"), userMsg("3"), userMsg("4")}

	got, err := mm.BuildContext("SYSTEM", msgs)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, schema.System, got[0].Role)
	assert.Equal(t, "SYSTEM", got[0].Content)
	assert.Equal(t, "2", got[1].Content)
	assert.Equal(t, "4", got[3].Content)
}

func TestTrimTail_DropsOrphanedToolResults(t *testing.T) {
	msgs := []*schema.Message{
		schema.UserMessage("q"),
		schema.AssistantMessage("", []schema.ToolCall{{ID: "c1"}}),
		schema.ToolMessage("r1", "c1"),
		schema.AssistantMessage("a", nil),
	}
	got := trimTail(msgs, 2)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Content)

	assert.Len(t, trimTail(msgs, 0), 4)
	assert.Len(t, trimTail(msgs, 10), 4)
}
