package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiCalls,
		aiDuration,
		aiTokensPrompt,
		aiTokensCompletion,
		aiCostCents,
	)
}

var (
	aiCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_calls_total",
			Help: "Completed AI calls per operation and success flag. Retried attempts count once, on the final outcome.",
		},
		[]string{"operation", "model", "success"},
	)

	aiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_call_duration_seconds",
			Help:    "Wall time of AI calls per operation, retries included.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"operation", "model"},
	)

	aiTokensPrompt = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_prompt_tokens_total",
			Help: "Sum of prompt tokens per operation and model.",
		},
		[]string{"operation", "model"},
	)

	aiTokensCompletion = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_completion_tokens_total",
			Help: "Sum of completion tokens per operation and model.",
		},
		[]string{"operation", "model"},
	)

	aiCostCents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_cost_cents_total",
			Help: "Accumulated AI spend in minor currency units per model.",
		},
		[]string{"model"},
	)
)

// ObserveAIDuration records the wall time of one finished AI call.
func ObserveAIDuration(operation, model string, took time.Duration) {
	aiDuration.WithLabelValues(operation, model).Observe(took.Seconds())
}

// ObserveAICall records one finished AI call and its token usage.
func ObserveAICall(operation, model string, promptTokens, completionTokens int, costCents int64, success bool) {
	aiCalls.WithLabelValues(operation, model, strconv.FormatBool(success)).Inc()
	if !success {
		return
	}
	aiTokensPrompt.WithLabelValues(operation, model).Add(float64(promptTokens))
	aiTokensCompletion.WithLabelValues(operation, model).Add(float64(completionTokens))
	aiCostCents.WithLabelValues(model).Add(float64(costCents))
}
