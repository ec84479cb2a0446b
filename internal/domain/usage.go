package domain

import (
	"encoding/json"
	"time"
)

// UsageRecord is one row of the append-only usage ledger, written after
// every successful language-model call. Reporting components outside
// this core consume the ledger, so its shape is a contract: provider,
// operation, token counts, cost, metadata, created_at.
type UsageRecord struct {
	ID               int64           `json:"id"`
	Provider         string          `json:"provider"`
	Operation        string          `json:"operation"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	TotalTokens      int             `json:"total_tokens"`
	CostCents        int64           `json:"cost_cents"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
