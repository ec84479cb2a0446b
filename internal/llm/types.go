package llm

import "encoding/json"

// PlanResult is the structured output of a plan call. The model is asked
// for exactly this shape; anything else is a malformed response.
type PlanResult struct {
	Summary   string     `json:"summary"`
	Strengths []string   `json:"strengths"`
	Gaps      []string   `json:"gaps"`
	NextSteps []PlanStep `json:"next_steps"`
}

// PlanStep is one recommended action in a plan.
type PlanStep struct {
	Task             string `json:"task"`
	Rationale        string `json:"rationale"`
	Priority         string `json:"priority"` // high | medium | low
	EstimatedMinutes int    `json:"estimated_minutes"`
}

// Usage carries the token accounting returned by the provider for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamFunc consumes one incremental content chunk of a streamed
// response. It is invoked synchronously on the calling goroutine, once
// per content delta, in arrival order.
type StreamFunc func(delta string)

// Wire types for the OpenAI-compatible chat completions endpoint.

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	// No omitempty: 0 is a meaningful temperature and must reach the
	// provider rather than fall back to its default.
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	StreamOptions  *streamOptions  `json:"stream_options,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// chatStreamChunk is one SSE data fragment of a streamed response. The
// final usage-bearing chunk has an empty choice list.
type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// decodePlan parses and validates the model's plan JSON.
func decodePlan(text string) (*PlanResult, error) {
	var plan PlanResult
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, malformedf("plan is not valid JSON: %v", err)
	}

	if plan.Summary == "" {
		return nil, malformedf("plan is missing summary")
	}
	for i, step := range plan.NextSteps {
		if step.Task == "" {
			return nil, malformedf("plan step %d is missing task", i)
		}
		switch step.Priority {
		case "high", "medium", "low":
		default:
			return nil, malformedf("plan step %d has invalid priority %q", i, step.Priority)
		}
	}

	return &plan, nil
}
