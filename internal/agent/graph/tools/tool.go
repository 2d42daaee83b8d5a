package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	errx "github.com/telo-ai/server/internal/core/error"
)

// Validator is implemented by tool inputs with constraints beyond JSON types.
type Validator interface {
	Validate() error
}

type typedTool[In, Out any] struct {
	info *schema.ToolInfo
	run  func(context.Context, *In) (Out, error)
}

// newTool adapts a typed function into an eino InvokableTool. Arguments that do
// not decode or validate fail with InvalidInput; executor errors that are not
// already classified become ToolExecution errors.
func newTool[In, Out any](info *schema.ToolInfo, run func(context.Context, *In) (Out, error)) tool.InvokableTool {
	return &typedTool[In, Out]{info: info, run: run}
}

func (t *typedTool[In, Out]) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

func (t *typedTool[In, Out]) InvokableRun(ctx context.Context, arguments string, _ ...tool.Option) (string, error) {
	name := t.info.Name
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}

	in := new(In)
	if err := json.Unmarshal([]byte(arguments), in); err != nil {
		return "", errx.InvalidInput(name, err)
	}
	if v, ok := any(in).(Validator); ok {
		if err := v.Validate(); err != nil {
			return "", errx.InvalidInput(name, err)
		}
	}

	out, err := t.run(ctx, in)
	if err != nil {
		var appErr *errx.AppError
		if errors.As(err, &appErr) && appErr.Code != errx.CodeUnknown {
			return "", err
		}
		return "", errx.ToolExecution(name, err)
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", errx.ToolExecution(name, fmt.Errorf("marshal output: %w", err))
	}
	return string(b), nil
}

// Failure is the structured tool output the model sees when a call fails.
type Failure struct {
	Error FailureDetail `json:"error"`
}

type FailureDetail struct {
	Code    errx.Code `json:"code"`
	Message string    `json:"message"`
}

// RenderFailure converts err into the JSON failure payload.
func RenderFailure(err error) string {
	detail := FailureDetail{Code: errx.CodeOf(err), Message: err.Error()}
	if detail.Code == errx.CodeUnknown {
		detail.Code = errx.CodeToolExecution
	}
	b, _ := json.Marshal(Failure{Error: detail})
	return string(b)
}

// ParseFailure reports whether content is a failure payload produced by RenderFailure.
func ParseFailure(content string) (FailureDetail, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, `{"error"`) {
		return FailureDetail{}, false
	}
	var f Failure
	if err := json.Unmarshal([]byte(trimmed), &f); err != nil || f.Error.Code == "" {
		return FailureDetail{}, false
	}
	return f.Error, true
}

func requireText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}
