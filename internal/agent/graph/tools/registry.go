package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	errx "github.com/telo-ai/server/internal/core/error"
	logx "github.com/telo-ai/server/pkg/logger"
	"github.com/telo-ai/server/pkg/tracing"
)

// Registry maps tool names to implementations. It is immutable once built and
// safe to share between requests.
type Registry struct {
	tools map[string]tool.InvokableTool
	infos []*schema.ToolInfo
}

func NewRegistry(ctx context.Context, ts ...tool.InvokableTool) (*Registry, error) {
	r := &Registry{tools: make(map[string]tool.InvokableTool, len(ts))}
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get tool info: %w", err)
		}
		if _, dup := r.tools[info.Name]; dup {
			return nil, fmt.Errorf("tool %q registered twice", info.Name)
		}
		r.tools[info.Name] = t
		r.infos = append(r.infos, info)
	}
	return r, nil
}

// Infos returns tool schemas in registration order for binding to a chat model.
func (r *Registry) Infos() []*schema.ToolInfo {
	return append([]*schema.ToolInfo(nil), r.infos...)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.infos))
	for i, info := range r.infos {
		names[i] = info.Name
	}
	return names
}

// Dispatch runs the named tool with raw JSON arguments.
func (r *Registry) Dispatch(ctx context.Context, name, arguments string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", errx.UnknownTool(name)
	}

	ctx, span := tracing.Tracer().Start(ctx, "tool."+name)
	defer span.End()

	out, err := t.InvokableRun(ctx, arguments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errx.CodeOf(err)))
		span.SetAttributes(attribute.String("tool.error_code", string(errx.CodeOf(err))))
		return "", err
	}
	return out, nil
}

// Recover dispatches and turns any failure into a structured tool output, so a
// bad call never ends the agent loop.
func (r *Registry) Recover(ctx context.Context, name, arguments string) string {
	out, err := r.Dispatch(ctx, name, arguments)
	if err != nil {
		logx.Ctx(ctx).Warn().
			Err(err).
			Str("tool_name", name).
			Str("code", string(errx.CodeOf(err))).
			Msg("Tool call failed; returning failure to model")
		return RenderFailure(err)
	}
	return out
}

// BaseTools returns recovering wrappers for use in an eino ToolsNode.
func (r *Registry) BaseTools() []tool.BaseTool {
	out := make([]tool.BaseTool, 0, len(r.infos))
	for _, info := range r.infos {
		out = append(out, &recoveringTool{info: info, reg: r})
	}
	return out
}

type recoveringTool struct {
	info *schema.ToolInfo
	reg  *Registry
}

func (t *recoveringTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

func (t *recoveringTool) InvokableRun(ctx context.Context, arguments string, _ ...tool.Option) (string, error) {
	return t.reg.Recover(ctx, t.info.Name, arguments), nil
}
