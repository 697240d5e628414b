package models

import "time"

// CallStatus classifies the terminal outcome of a generation call.
type CallStatus string

const (
	StatusSuccess CallStatus = "success"
	StatusFailed  CallStatus = "failed"
	StatusRetried CallStatus = "retried"
)

// ResolutionTier names a backend output-resolution tier.
type ResolutionTier string

const (
	Resolution1K ResolutionTier = "1K"
	Resolution2K ResolutionTier = "2K"
	Resolution4K ResolutionTier = "4K"
)

// CallInput is what the workflow reports about one generation call.
// The ledger prices it and stamps the timestamp; callers never pass a cost.
type CallInput struct {
	Model        string
	OperationTag string // panel or asset identifier, e.g. "jin_sohan_base", "s1_p01"
	Phase        string // pipeline phase, e.g. "panel_generation"
	SceneID      string
	Resolution   ResolutionTier
	Batch        bool    // submitted through a half-price batch channel
	Megapixels   float64 // rendered output size, for megapixel-billed backends

	PromptTokens int
	OutputTokens int
	CachedTokens int

	GenerationTimeMS int64
	Status           CallStatus // empty defaults to success
	ErrorMessage     string

	// Tags carries caller metadata with no dedicated field above.
	Tags map[string]string
}

// CallRecord is one immutable ledger entry. Cost is fixed when the record is
// created and never recomputed, even if the pricing table changes later.
type CallRecord struct {
	Timestamp        time.Time         `json:"timestamp"`
	Model            string            `json:"model"`
	OperationTag     string            `json:"operation_tag"`
	Phase            string            `json:"phase,omitempty"`
	SceneID          string            `json:"scene_id,omitempty"`
	Resolution       ResolutionTier    `json:"resolution,omitempty"`
	Batch            bool              `json:"is_batch"`
	Megapixels       float64           `json:"megapixels,omitempty"`
	PromptTokens     int               `json:"prompt_tokens"`
	OutputTokens     int               `json:"output_tokens"`
	CachedTokens     int               `json:"cached_tokens"`
	CostUSD          float64           `json:"cost_usd"`
	FallbackPricing  bool              `json:"fallback_pricing,omitempty"`
	Status           CallStatus        `json:"status"`
	GenerationTimeMS int64             `json:"generation_time_ms"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
}
