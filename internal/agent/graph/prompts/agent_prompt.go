package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/telo-ai/server/internal/agent/graph/tools"
)

//go:embed template/agent_prompt.txt
var agentSystemPrompt string

// AgentPromptData is the variable part of the research agent's instructions.
type AgentPromptData struct {
	MaxSteps  int
	BucketURL string
	// Tools lists the registered tool names; sections for missing tools are left out.
	Tools []string
}

// RenderAgentSystem renders the agent system prompt and triggers prompt callbacks.
func RenderAgentSystem(ctx context.Context, data AgentPromptData) (string, error) {
	has := make(map[string]bool, len(data.Tools))
	for _, name := range data.Tools {
		has[name] = true
	}

	// Render via Eino prompt component (Go template) to both format and emit callbacks
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(agentSystemPrompt),
	)
	vars := map[string]any{
		"MaxSteps":     data.MaxSteps,
		"WrapUpStep":   max(data.MaxSteps-2, 1),
		"BucketURL":    strings.TrimRight(data.BucketURL, "/"),
		"SearchTool":   tools.ToolDocumentSearch,
		"ContentTool":  tools.ToolDocumentContentSearch,
		"BatchTool":    tools.ToolDocumentBatchContentSearch,
		"GraphTool":    tools.ToolDocumentRelationGraph,
		"ThinkingTool": tools.ToolSequentialThinking,
		"SummaryTool":  tools.ToolSummarizeThinking,
		"ClearTool":    tools.ToolClearThoughts,
		"ParseTool":    tools.ToolDocumentParse,
		"HasParse":     has[tools.ToolDocumentParse],
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("agent prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("agent prompt render: empty result")
	}
	return msgs[0].Content, nil
}
