package observers

import (
	"context"
	"errors"
	"io"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/telo-ai/server/pkg/logger"
)

// newToolHandler builds a typed ToolCallbackHandler (not yet wrapped).
func newToolHandler() *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			ev := logx.Ctx(ctx).Debug().Str("tool_name", info.Name)
			if input != nil {
				ev = ev.Str("arguments", excerpt(input.ArgumentsInJSON))
			}
			ev.Msg("Tool started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			ev := logx.Ctx(ctx).Debug().Str("tool_name", info.Name)
			if output != nil {
				ev = ev.Int("output_len", len(output.Response))
			}
			ev.Msg("Tool finished")
			return ctx
		},
		OnEndWithStreamOutput: func(ctx context.Context, info *einocb.RunInfo, output *schema.StreamReader[*tool.CallbackOutput]) context.Context {
			go func() {
				defer output.Close()
				total := 0
				for {
					chunk, err := output.Recv()
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						logx.Ctx(ctx).Warn().Err(err).Str("tool_name", info.Name).Msg("Tool stream failed")
						return
					}
					total += len(chunk.Response)
				}
				logx.Ctx(ctx).Debug().Str("tool_name", info.Name).Int("output_len", total).Msg("Tool stream finished")
			}()
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Ctx(ctx).Warn().Err(err).Str("tool_name", info.Name).Msg("Tool execution failed")
			return ctx
		},
	}
}
