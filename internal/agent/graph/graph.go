package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino/compose"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/telo-ai/server/internal/agent/graph/conversations"
	"github.com/telo-ai/server/internal/agent/graph/nodes"
	"github.com/telo-ai/server/internal/agent/graph/observers"
	"github.com/telo-ai/server/internal/agent/graph/prompts"
	"github.com/telo-ai/server/internal/agent/graph/thoughts"
	"github.com/telo-ai/server/internal/agent/graph/tools"
	"github.com/telo-ai/server/internal/agent/model"
	errx "github.com/telo-ai/server/internal/core/error"
	logx "github.com/telo-ai/server/pkg/logger"
	"github.com/telo-ai/server/pkg/tracing"
)

// Runner executes one research turn.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*model.RunResult, error)
}

// Config holds everything needed to compose the agent graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs the chat model.
type Config struct {
	APIKey          string
	BaseURL         string
	AgentModel      model.AgentModelConfig
	Loop            model.AgentLoopConfig
	PublicBucketURL string
	Registry        *tools.Registry
	MessagesManager *conversations.MessagesManager
	Thoughts        *thoughts.Book
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	// ChatModel must already have the registry's tools bound.
	ChatModel       einomodel.BaseChatModel
	ModelName       string
	ModelTimeout    time.Duration
	Registry        *tools.Registry
	MessagesManager *conversations.MessagesManager
	Loop            model.AgentLoopConfig
	PublicBucketURL string
}

// GraphBuilder handles the construction of the agent graph
type GraphBuilder struct {
	config *GraphConfig
	policy nodes.StopPolicy
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
	thoughts *thoughts.Book
}

// NewRunner wraps a compiled graph. Each invocation borrows the conversation's
// thought log from book for its duration.
func NewRunner(runnable compose.Runnable[model.QueryInput, *schema.Message], book *thoughts.Book) Runner {
	if book == nil {
		book = thoughts.NewBook()
	}
	return &graphRunner{runnable: runnable, thoughts: book}
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (*model.RunResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "agent.run")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", in.ConversationID))

	log, release := r.thoughts.Acquire(in.ConversationID)
	defer release()
	ctx = thoughts.WithLog(ctx, log)
	ctx, upstream := nodes.CaptureUpstream(ctx)

	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		err = classifyRunError(ctx, err, upstream())
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errx.CodeOf(err)))
		return nil, err
	}
	if out == nil {
		return nil, errx.UpstreamInference(errors.New("agent produced no message"))
	}

	res := &model.RunResult{Message: out}
	if n, ok := out.Extra[model.ExtraStepCount].(int); ok {
		res.Steps = n
	}
	if c, ok := out.Extra[model.ExtraStepCeilingReached].(bool); ok {
		res.StepCeilingReached = c
	}
	if c, ok := out.Extra[model.ExtraUsageCostTotal].(float64); ok {
		res.CostUSD = c
	}
	span.SetAttributes(
		attribute.Int("agent.steps", res.Steps),
		attribute.Bool("agent.step_ceiling_reached", res.StepCeilingReached),
	)

	if len(out.Extra) > 0 {
		if b, err := json.Marshal(out.Extra); err == nil {
			logx.Ctx(ctx).Debug().RawJSON("extra", b).Msg("Agent run finished")
		}
	}
	return res, nil
}

func classifyRunError(ctx context.Context, err, upstream error) error {
	switch {
	case upstream != nil:
		return upstream
	case errx.CodeOf(err) != errx.CodeUnknown:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return errx.New(err, http.StatusInternalServerError, "agent run failed")
}

// BuildAgentGraph creates the chat model, binds the tools, builds the graph and returns a Runner.
func BuildAgentGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is nil")
	}

	client, err := nodes.NewGenAIClient(ctx, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	cm, err := nodes.NewChatModel(ctx, client, &cfg.AgentModel)
	if err != nil {
		return nil, err
	}
	if err := nodes.BindTools(cm, cfg.Registry.Infos()); err != nil {
		return nil, err
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModel:       cm,
		ModelName:       cfg.AgentModel.Model,
		ModelTimeout:    cfg.AgentModel.Timeout,
		Registry:        cfg.Registry,
		MessagesManager: cfg.MessagesManager,
		Loop:            cfg.Loop,
		PublicBucketURL: cfg.PublicBucketURL,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Agent graph built successfully")
	return NewRunner(runnable, cfg.Thoughts), nil
}

// BuildGraph constructs and returns the compiled agent graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Basic config validation
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModel == nil {
		return nil, fmt.Errorf("chat model is not initialized")
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("tool registry is nil")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}

	builder := &GraphBuilder{
		config: config,
		policy: nodes.NewStopPolicy(config.Loop),
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}
	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools creates the tools node. All calls of one step run concurrently;
// results come back in call order.
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	reg := b.config.Registry
	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               reg.BaseTools(),
		ExecuteSequentially: false,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Hallucinated names get a structured failure the model can recover from.
			return reg.Recover(ctx, name, input), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	return b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler()),
		compose.WithStatePostHandler(nodes.NewToolExecutorPostHandler()),
	)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	promptData := prompts.AgentPromptData{
		MaxSteps:  b.policy.MaxSteps,
		BucketURL: b.config.PublicBucketURL,
		Tools:     b.config.Registry.Names(),
	}

	if err := b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(b.config.MessagesManager, promptData),
		compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
	); err != nil {
		return fmt.Errorf("add %s: %w", nodes.NodeInputConverter, err)
	}

	if err := b.graph.AddChatModelNode(nodes.NodeAgentChatModel,
		nodes.WithCallTimeout(b.config.ChatModel, b.config.ModelTimeout),
		compose.WithStatePreHandler(nodes.NewAgentChatModelPreHandler()),
		compose.WithStatePostHandler(nodes.NewAgentChatModelPostHandler(b.config.ModelName, b.policy)),
	); err != nil {
		return fmt.Errorf("add %s: %w", nodes.NodeAgentChatModel, err)
	}

	if err := b.graph.AddLambdaNode(nodes.NodeContinue, nodes.NewContinueNode()); err != nil {
		return fmt.Errorf("add %s: %w", nodes.NodeContinue, err)
	}

	if err := b.graph.AddLambdaNode(nodes.NodeFinalizer, nodes.NewFinalizerNode()); err != nil {
		return fmt.Errorf("add %s: %w", nodes.NodeFinalizer, err)
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeAgentChatModel},
		{nodes.NodeContinue, nodes.NodeAgentChatModel},
		{nodes.NodeFinalizer, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewAgentChatModelCondition(b.policy),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			nodes.NodeContinue:     true,
			compose.END:            true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeAgentChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}

	ceilingBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(b.policy),
		map[string]bool{
			nodes.NodeAgentChatModel: true,
			nodes.NodeFinalizer:      true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeToolExecutor, ceilingBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding ceiling branch")
		return fmt.Errorf("error adding ceiling branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Every step runs the model plus either the tools node or the continue node.
	maxRunSteps := 3*b.policy.MaxSteps + 10

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxRunSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
