package nodes

const (
	NodeInputConverter = "InputConverter"
	NodeAgentChatModel = "AgentChatModel"
	NodeToolExecutor   = "ToolExecutor"
	NodeContinue       = "Continue"
	NodeFinalizer      = "Finalizer"
)

const (
	// ContinueNotice is appended when the agent stops talking before its research is done.
	ContinueNotice = "SYSTEM NOTICE: Your research is not finished yet. " +
		"Continue investigating with the available tools, or write the complete final answer " +
		"in Markdown citing document number, year and link."

	// CeilingNotice is the answer when the step limit is hit before any text was produced.
	CeilingNotice = "Maaf, batas langkah penelusuran tercapai sebelum jawaban lengkap tersusun. " +
		"Silakan persempit pertanyaan atau minta penelusuran lanjutan pada dokumen tertentu."
)
