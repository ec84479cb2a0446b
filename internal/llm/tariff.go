package llm

import "math"

// Tariff maps token usage to cost for one model, in minor currency units
// (cents) per 1000 tokens.
type Tariff struct {
	PromptCentsPerK     float64
	CompletionCentsPerK float64
}

// defaultTariffs covers the models the pipeline is expected to run with.
// An unknown model costs 0; metering still records its token counts.
var defaultTariffs = map[string]Tariff{
	"gpt-4o":        {PromptCentsPerK: 0.25, CompletionCentsPerK: 1.0},
	"gpt-4o-mini":   {PromptCentsPerK: 0.015, CompletionCentsPerK: 0.06},
	"gpt-4.1":       {PromptCentsPerK: 0.2, CompletionCentsPerK: 0.8},
	"gpt-4.1-mini":  {PromptCentsPerK: 0.04, CompletionCentsPerK: 0.16},
	"gpt-3.5-turbo": {PromptCentsPerK: 0.05, CompletionCentsPerK: 0.15},
}

// DefaultTariffs returns the built-in per-model tariff table.
func DefaultTariffs() map[string]Tariff {
	return defaultTariffs
}

// Cost computes the cost of a call in cents:
// round(prompt/1000 × promptRate + completion/1000 × completionRate).
// Unknown models yield 0.
func Cost(tariffs map[string]Tariff, model string, usage Usage) int64 {
	t, ok := tariffs[model]
	if !ok {
		return 0
	}

	cents := float64(usage.PromptTokens)/1000*t.PromptCentsPerK +
		float64(usage.CompletionTokens)/1000*t.CompletionCentsPerK
	return int64(math.Round(cents))
}
