package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	MaxHistoryMessages int           `envconfig:"CONVERSATION_MAX_HISTORY_MESSAGES" default:"40"`
}

type AgentModelConfig struct {
	Model          string        `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens      int           `envconfig:"AGENT_MAX_TOKENS" default:"8192"`
	Temperature    float32       `envconfig:"AGENT_TEMPERATURE" default:"0.1"`
	TopP           float32       `envconfig:"AGENT_TOP_P" default:"0.9"`
	ThinkingBudget int32         `envconfig:"AGENT_THINKING_BUDGET" default:"2000"`
	Timeout        time.Duration `envconfig:"AGENT_MODEL_TIMEOUT" default:"60s"`
}

// AgentLoopConfig holds the stop-condition constants of the research loop.
type AgentLoopConfig struct {
	MaxSteps       int `envconfig:"AGENT_MAX_STEPS" default:"15"`
	MinSteps       int `envconfig:"AGENT_MIN_STEPS" default:"3"`
	AnswerMinChars int `envconfig:"AGENT_ANSWER_MIN_CHARS" default:"200"`
}

type ParserConfig struct {
	Model       string        `envconfig:"PARSER_MODEL" default:"gemini-2.0-flash-lite"`
	Concurrency int           `envconfig:"PARSER_CONCURRENCY" default:"4"`
	Timeout     time.Duration `envconfig:"PARSER_TIMEOUT" default:"120s"`
}
