package domain

import "time"

// StreamSnapshot is a point-in-time view of a generation joined with
// aggregated output metrics. It is derived on every poll and never
// persisted; the stored progress_percent column is authoritative for
// progress, while TotalTokens and LatestOutputAt come from the output
// aggregate and are diagnostic.
type StreamSnapshot struct {
	ID              int64            `json:"id"`
	Status          GenerationStatus `json:"status"`
	ProgressPercent int              `json:"progress_percent"`
	CostCents       int64            `json:"cost_cents"`
	TotalTokens     int              `json:"total_tokens"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
	LatestOutputAt  *time.Time       `json:"latest_output_at,omitempty"`
}
