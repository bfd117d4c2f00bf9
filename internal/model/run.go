package model

import "time"

// RunStatus is the outcome of one reconciliation attempt.
type RunStatus string

const (
	RunStatusSucceeded          RunStatus = "SUCCEEDED"
	RunStatusFailed             RunStatus = "FAILED"
	RunStatusNeedsClarification RunStatus = "NEEDS_CLARIFICATION"
)

// IngestMode selects how proposals are matched against existing items.
type IngestMode string

const (
	// ModeReconcile matches proposals against existing items and asks the
	// user when more than one item could be meant.
	ModeReconcile IngestMode = "reconcile"
	// ModePatch matches like ModeReconcile but never asks; the best-ranked
	// candidate wins.
	ModePatch IngestMode = "patch"
	// ModeRebuild replaces the trip's items with the proposals.
	ModeRebuild IngestMode = "rebuild"
	// ModeResolve marks runs committed by answering a clarification request.
	ModeResolve IngestMode = "resolve"
)

// ParseIngestMode validates a user-supplied mode. Empty means reconcile.
func ParseIngestMode(s string) (IngestMode, bool) {
	switch m := IngestMode(s); m {
	case "":
		return ModeReconcile, true
	case ModeReconcile, ModePatch, ModeRebuild:
		return m, true
	}
	return "", false
}

// ClientContext is what the caller knows about the traveler's clock.
type ClientContext struct {
	Timezone string `json:"timezone"`
	NowISO   string `json:"now_iso"`
}

// TokenUsage tracks service token consumption for a run.
type TokenUsage struct {
	Model               string  `json:"model,omitempty"`
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int     `json:"cache_read_tokens,omitempty"`
	CostUSD             float64 `json:"cost_usd"`
}

// Run records one reconciliation attempt. Runs are append-only.
type Run struct {
	ID             string                `json:"id"`
	TripID         string                `json:"trip_id"`
	Status         RunStatus             `json:"status"`
	Mode           IngestMode            `json:"mode"`
	InputCharCount int                   `json:"input_char_count"`
	Output         *ReconstructionOutput `json:"output,omitempty"`
	ErrorKind      string                `json:"error_kind,omitempty"`
	ErrorMessage   string                `json:"error_message,omitempty"`
	PendingID      string                `json:"pending_id,omitempty"`
	Usage          TokenUsage            `json:"usage"`
	CreatedAt      time.Time             `json:"created_at"`
}
