package prompts

type PromptName string

const (
	// Routing
	PromptIntentClassify PromptName = "intent_classify"
	PromptSourceSelect   PromptName = "source_select"

	// Answering
	PromptSQLSynthesize PromptName = "sql_synthesize"
	PromptChartConfig   PromptName = "chart_config"
	PromptSQLAnswer     PromptName = "sql_answer"
	PromptRAGAnswer     PromptName = "rag_answer"
	PromptChatReply     PromptName = "chat_reply"

	// Ingestion
	PromptSourceDescribe PromptName = "source_describe"
)

// Input is a superset of all fields any prompt might need.
// Missing fields render empty strings (templates use missingkey=zero).
type Input struct {
	Question string

	// Selection
	Candidates string

	// Synthesis
	Dialect     string
	NumericCast string
	Schema      string

	// Results
	Statement string
	Rows      string

	// Retrieval
	Context string

	// Description
	SourceName string
	SourceKind string
	Sample     string
}
