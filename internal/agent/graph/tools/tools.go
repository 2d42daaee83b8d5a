package tools

import (
	"github.com/cloudwego/eino/components/tool"
)

// Deps are the collaborators the document tools need.
type Deps struct {
	Searcher      Searcher
	Documents     DocumentReader // optional; documentParse is left out when nil
	PublicBaseURL string
}

// DefaultTools returns the research toolset in the order it is offered to the model.
func DefaultTools(d Deps) []tool.InvokableTool {
	ts := []tool.InvokableTool{
		newDocumentSearchTool(d.Searcher, d.PublicBaseURL),
		newDocumentContentSearchTool(d.Searcher),
		newDocumentBatchContentSearchTool(d.Searcher),
		newDocumentRelationGraphTool(),
		newSequentialThinkingTool(),
		newSummarizeThinkingTool(),
		newClearThoughtsTool(),
	}
	if d.Documents != nil {
		ts = append(ts, newDocumentParseTool(d.Documents))
	}
	return ts
}
