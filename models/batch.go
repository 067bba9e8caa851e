package models

// BatchRequest is the payload for POST /api/v1/batch/fetch.
type BatchRequest struct {
	// URLs is the list of target pages to fetch. Required.
	URLs []string `json:"urls" binding:"required,min=1,max=100"`

	// Options contains shared fetch options applied to all URLs.
	Options BatchOptions `json:"options"`

	// WebhookURL, when set, receives a signed "batch.completed" event
	// once every URL in the batch has finished.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret is the HMAC-SHA256 signing secret for webhook delivery.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchOptions are the shared fetch settings applied to every URL in a batch.
type BatchOptions struct {
	Proxy         *ProxySettings `json:"proxy,omitempty"`
	CaptchaAPIKey string         `json:"captcha_api_key,omitempty"`
	Timeout       int            `json:"timeout,omitempty" binding:"omitempty,min=1,max=300"`
	FetchMode     string         `json:"fetch_mode,omitempty" binding:"omitempty,oneof=auto browser http"`
	OutputFormat  string         `json:"output_format,omitempty" binding:"omitempty,oneof=html markdown text"`
	ExtractMode   string         `json:"extract_mode,omitempty" binding:"omitempty,oneof=raw article"`
	BlockAds      bool           `json:"block_ads,omitempty"`
}

// BatchResponse is the immediate response for POST /api/v1/batch/fetch.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
	Results   []*FetchResponse `json:"results,omitempty"`
}

// BatchJob tracks an in-progress batch fetch operation.
type BatchJob struct {
	ID        string
	Status    string // "processing", "completed", "partial", "failed"
	Total     int
	Completed int
	Results   []*FetchResponse
	CreatedAt int64 // unix timestamp
}
