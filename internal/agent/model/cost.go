package model

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing provides hardcoded USD pricing per 1M tokens (text tokens).
var defaultPricing = map[string]Pricing{
	// Source: Gemini pricing (Standard; text). Adjust for audio/image if needed.
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
	"gemini-2.0-flash-lite": {InputPerM: 0.075, OutputPerM: 0.30},
}

// ResolvePricing returns hardcoded pricing for a model. Versioned names such
// as "gemini-2.5-flash-001" resolve to their base entry; unknown models are free.
func ResolvePricing(model string) Pricing {
	model = strings.TrimPrefix(model, "models/")
	if p, ok := defaultPricing[model]; ok {
		return p
	}
	best := ""
	for name := range defaultPricing {
		if strings.HasPrefix(model, name+"-") && len(name) > len(best) {
			best = name
		}
	}
	return defaultPricing[best]
}

// ComputeCost converts token usage to USD cost using per-1M Pricing.
func ComputeCost(usage *schema.TokenUsage, p Pricing) (inputCost, outputCost, total float64) {
	if usage == nil {
		return 0, 0, 0
	}
	inputCost = p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0
	outputCost = p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0
	total = inputCost + outputCost
	return
}

// UsageCost is the per-call cost record attached to assistant messages.
type UsageCost struct {
	Currency         string  `json:"currency"`
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	InputCost        float64 `json:"input_cost"`
	OutputCost       float64 `json:"output_cost"`
	TotalCost        float64 `json:"total_cost"`
}

// NewUsageCost prices usage for modelName. It returns nil when usage is nil.
func NewUsageCost(modelName string, usage *schema.TokenUsage) *UsageCost {
	if usage == nil {
		return nil
	}
	inC, outC, total := ComputeCost(usage, ResolvePricing(modelName))
	return &UsageCost{
		Currency:         "USD",
		Model:            modelName,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		InputCost:        inC,
		OutputCost:       outC,
		TotalCost:        total,
	}
}
