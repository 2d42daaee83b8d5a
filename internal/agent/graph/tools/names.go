package tools

// Tool names are part of the client contract: the UI renders parts typed
// "tool-<name>".
const (
	ToolDocumentSearch             = "documentSearch"
	ToolDocumentContentSearch      = "documentContentSearch"
	ToolDocumentBatchContentSearch = "documentBatchContentSearch"
	ToolDocumentRelationGraph      = "documentRelationGraph"
	ToolSequentialThinking         = "sequentialThinking"
	ToolSummarizeThinking          = "generateSummarySequentialThinking"
	ToolClearThoughts              = "clearThoughts"
	ToolDocumentParse              = "documentParse"
)

const MaxBatchDocuments = 5
