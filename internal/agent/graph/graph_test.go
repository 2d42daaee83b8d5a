package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telo-ai/server/internal/agent/graph/conversations"
	"github.com/telo-ai/server/internal/agent/graph/nodes"
	"github.com/telo-ai/server/internal/agent/graph/thoughts"
	"github.com/telo-ai/server/internal/agent/graph/tools"
	"github.com/telo-ai/server/internal/agent/model"
	"github.com/telo-ai/server/internal/agent/turn"
	errx "github.com/telo-ai/server/internal/core/error"
	"github.com/telo-ai/server/pkg/autorag"
)

// scriptedModel answers each call with the result of script(call, input).
type scriptedModel struct {
	mu     sync.Mutex
	script func(call int, input []*schema.Message) (*schema.Message, error)
	inputs [][]*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	call := len(m.inputs)
	m.mu.Unlock()
	return m.script(call, input)
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

func (m *scriptedModel) input(call int) []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs[call-1]
}

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, req autorag.SearchRequest) (*autorag.SearchResponse, error) {
	return &autorag.SearchResponse{
		SearchQuery: req.Query,
		Data:        []autorag.Document{{FileID: "f1", Filename: "perda-1-2020.pdf", Score: 0.9}},
	}, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(e string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) StepStarted(context.Context, int) { o.add("step") }
func (o *recordingObserver) AssistantMessage(_ context.Context, _ int, msg *schema.Message) {
	o.add("assistant:" + msg.Content)
}
func (o *recordingObserver) ToolCallRequested(_ context.Context, call schema.ToolCall) {
	o.add("call:" + call.Function.Name)
}
func (o *recordingObserver) ToolCallCompleted(_ context.Context, _, toolName, _ string) {
	o.add("result:" + toolName)
}
func (o *recordingObserver) StepFinished(context.Context, int) { o.add("finish") }

func newTestRunner(t *testing.T, cm einomodel.BaseChatModel) Runner {
	t.Helper()
	ctx := context.Background()
	reg, err := tools.NewRegistry(ctx, tools.DefaultTools(tools.Deps{
		Searcher:      stubSearcher{},
		PublicBaseURL: "https://tgxai-buckets.abidf.com",
	})...)
	require.NoError(t, err)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModel:       cm,
		ModelName:       "gemini-2.5-flash",
		Registry:        reg,
		MessagesManager: conversations.NewMessagesManager(nil, model.ConversationConfig{MaxHistoryMessages: 40}),
		Loop:            model.AgentLoopConfig{MaxSteps: 15, MinSteps: 3, AnswerMinChars: 200},
		PublicBucketURL: "https://tgxai-buckets.abidf.com",
	})
	require.NoError(t, err)
	return NewRunner(runnable, thoughts.NewBook())
}

func userQuery(text string) model.QueryInput {
	return model.QueryInput{
		ConversationID: "conv-1",
		Messages: []model.UIMessage{{
			ID:    "u1",
			Role:  model.RoleUser,
			Parts: []model.UIPart{{Type: model.PartText, Text: text}},
		}},
	}
}

func toolCall(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Type: "function", Function: schema.FunctionCall{Name: name, Arguments: args}}
}

func TestRunner_LongAnswerStopsAtFloor(t *testing.T) {
	answer := strings.Repeat("a", 250)
	cm := &scriptedModel{script: func(int, []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage(answer, nil), nil
	}}

	res, err := newTestRunner(t, cm).Invoke(context.Background(), userQuery("apa isi perda 1 2020?"))
	require.NoError(t, err)

	assert.Equal(t, 3, cm.calls())
	assert.Equal(t, 3, res.Steps)
	assert.False(t, res.StepCeilingReached)
	assert.Equal(t, answer, res.Message.Content)

	second := cm.input(2)
	last := second[len(second)-1]
	assert.Equal(t, schema.System, last.Role)
	assert.Equal(t, nodes.ContinueNotice, last.Content)
}

func TestRunner_StopsAtStepCeiling(t *testing.T) {
	cm := &scriptedModel{script: func(call int, _ []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("", []schema.ToolCall{
			toolCall("", tools.ToolDocumentSearch, `{"query":"retribusi pasar"}`),
		}), nil
	}}

	res, err := newTestRunner(t, cm).Invoke(context.Background(), userQuery("retribusi pasar"))
	require.NoError(t, err)

	assert.Equal(t, 15, cm.calls())
	assert.Equal(t, 15, res.Steps)
	assert.True(t, res.StepCeilingReached)
	assert.Equal(t, nodes.CeilingNotice, res.Message.Content)
}

func TestRunner_CeilingKeepsEarlierAnswer(t *testing.T) {
	cm := &scriptedModel{script: func(call int, _ []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("jawaban sementara", []schema.ToolCall{
			toolCall("", tools.ToolDocumentSearch, `{"query":"pajak"}`),
		}), nil
	}}

	res, err := newTestRunner(t, cm).Invoke(context.Background(), userQuery("pajak"))
	require.NoError(t, err)
	assert.True(t, res.StepCeilingReached)
	assert.Equal(t, "jawaban sementara", res.Message.Content)
}

func TestRunner_ToolFailureIsFedBack(t *testing.T) {
	answer := strings.Repeat("b", 250)
	cm := &scriptedModel{script: func(call int, _ []*schema.Message) (*schema.Message, error) {
		if call == 1 {
			return schema.AssistantMessage("", []schema.ToolCall{
				toolCall("c1", tools.ToolDocumentSearch, `{}`),
				toolCall("c2", "searchEverything", `{"q":"x"}`),
			}), nil
		}
		return schema.AssistantMessage(answer, nil), nil
	}}

	res, err := newTestRunner(t, cm).Invoke(context.Background(), userQuery("cari"))
	require.NoError(t, err)
	assert.Equal(t, answer, res.Message.Content)

	var results []*schema.Message
	for _, m := range cm.input(2) {
		if m.Role == schema.Tool {
			results = append(results, m)
		}
	}
	require.Len(t, results, 2)

	invalid, ok := tools.ParseFailure(results[0].Content)
	require.True(t, ok, results[0].Content)
	assert.Equal(t, errx.CodeInvalidInput, invalid.Code)
	assert.Equal(t, "c1", results[0].ToolCallID)

	unknown, ok := tools.ParseFailure(results[1].Content)
	require.True(t, ok, results[1].Content)
	assert.Equal(t, errx.CodeUnknownTool, unknown.Code)
}

func TestRunner_UpstreamFailureAbortsRun(t *testing.T) {
	cm := &scriptedModel{script: func(call int, _ []*schema.Message) (*schema.Message, error) {
		if call == 1 {
			return schema.AssistantMessage("", []schema.ToolCall{
				toolCall("c1", tools.ToolDocumentSearch, `{"query":"perda"}`),
			}), nil
		}
		return nil, errors.New("503 service unavailable")
	}}

	_, err := newTestRunner(t, cm).Invoke(context.Background(), userQuery("perda"))
	require.Error(t, err)
	assert.Equal(t, errx.CodeUpstreamInference, errx.CodeOf(err))
	assert.Equal(t, 2, cm.calls())
}

func TestRunner_ReportsProgressToObserver(t *testing.T) {
	answer := strings.Repeat("c", 250)
	cm := &scriptedModel{script: func(call int, _ []*schema.Message) (*schema.Message, error) {
		if call == 1 {
			return schema.AssistantMessage("", []schema.ToolCall{
				toolCall("c1", tools.ToolDocumentSearch, `{"query":"perda"}`),
			}), nil
		}
		return schema.AssistantMessage(answer, nil), nil
	}}

	obs := &recordingObserver{}
	ctx := turn.WithObserver(context.Background(), obs)
	_, err := newTestRunner(t, cm).Invoke(ctx, userQuery("perda"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"step", "assistant:", "call:documentSearch", "result:documentSearch", "finish",
		"step", "assistant:" + answer, "finish",
		"step", "assistant:" + answer, "finish",
	}, obs.events)
}

func TestRunner_RejectsEmptyConversation(t *testing.T) {
	cm := &scriptedModel{script: func(int, []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("x", nil), nil
	}}

	_, err := newTestRunner(t, cm).Invoke(context.Background(), model.QueryInput{ConversationID: "c"})
	require.Error(t, err)
	assert.Equal(t, errx.CodeBadRequest, errx.CodeOf(err))
	assert.Equal(t, 0, cm.calls())
}

func TestBuildGraph_ValidatesConfig(t *testing.T) {
	_, err := BuildGraph(context.Background(), nil)
	assert.Error(t, err)

	_, err = BuildGraph(context.Background(), &GraphConfig{})
	assert.Error(t, err)
}
