package nodes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/telo-ai/server/internal/agent/model"
	errx "github.com/telo-ai/server/internal/core/error"
	logx "github.com/telo-ai/server/pkg/logger"
)

// NewGenAIClient creates the Gemini API client shared by the agent and the document parser.
func NewGenAIClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewChatModel creates the research agent's chat model.
func NewChatModel(ctx context.Context, client *genai.Client, cfg *model.AgentModelConfig) (*gemini.ChatModel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("agent model config is nil")
	}
	gcfg := &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		TopP:        &cfg.TopP,
		MaxTokens:   &cfg.MaxTokens,
	}
	if cfg.ThinkingBudget > 0 {
		gcfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(cfg.ThinkingBudget),
		}
	}

	cm, err := gemini.NewChatModel(ctx, gcfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating agent model")
		return nil, fmt.Errorf("error creating agent model: %w", err)
	}
	return cm, nil
}

// BindTools binds tool schemas to the agent chat model
func BindTools(cm *gemini.ChatModel, tools []*schema.ToolInfo) error {
	if err := cm.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}
	logx.Debug().Int("tool_count", len(tools)).Msg("Successfully bound tools to agent model")
	return nil
}

// timeoutChatModel bounds every model call and classifies its failures as
// upstream inference errors.
type timeoutChatModel struct {
	inner   einomodel.BaseChatModel
	timeout time.Duration
}

// WithCallTimeout wraps m so that each Generate call, and each Stream until
// its reader is drained or closed, gets its own deadline.
func WithCallTimeout(m einomodel.BaseChatModel, timeout time.Duration) einomodel.BaseChatModel {
	return &timeoutChatModel{inner: m, timeout: timeout}
}

func (m *timeoutChatModel) GetType() string { return "AgentChatModel" }

func (m *timeoutChatModel) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout > 0 {
		return context.WithTimeout(ctx, m.timeout)
	}
	return context.WithCancel(ctx)
}

func (m *timeoutChatModel) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return recordUpstream(ctx, errx.UpstreamInference(err))
}

func (m *timeoutChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	out, err := m.inner.Generate(callCtx, input, opts...)
	if err != nil {
		return nil, m.fail(ctx, err)
	}
	return out, nil
}

func (m *timeoutChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	callCtx, cancel := m.callContext(ctx)

	in, err := m.inner.Stream(callCtx, input, opts...)
	if err != nil {
		cancel()
		return nil, m.fail(ctx, err)
	}

	// the deadline covers the whole stream, so it is released by the relay
	out, w := schema.Pipe[*schema.Message](1)
	go func() {
		defer cancel()
		defer in.Close()
		defer w.Close()
		for {
			chunk, err := in.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				w.Send(nil, m.fail(ctx, err))
				return
			}
			if closed := w.Send(chunk, nil); closed {
				return
			}
		}
	}()
	return out, nil
}

type failureBox struct {
	mu  sync.Mutex
	err error
}

type failureKey struct{}

// CaptureUpstream returns a context that remembers the first model failure of
// a run, and a func reporting it. The graph runtime may wrap node errors, so
// callers use this to recover the classified error.
func CaptureUpstream(ctx context.Context) (context.Context, func() error) {
	box := &failureBox{}
	return context.WithValue(ctx, failureKey{}, box), func() error {
		box.mu.Lock()
		defer box.mu.Unlock()
		return box.err
	}
}

func recordUpstream(ctx context.Context, err error) error {
	if box, ok := ctx.Value(failureKey{}).(*failureBox); ok {
		box.mu.Lock()
		if box.err == nil {
			box.err = err
		}
		box.mu.Unlock()
	}
	return err
}
