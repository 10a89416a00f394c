package models

// BatchRequest is the payload for POST /api/v1/fetch-batch.
type BatchRequest struct {
	// URLs is the list of absolute URLs to fetch. Required.
	URLs []string `json:"urls" binding:"required,min=1,max=10000,dive,url"`

	// Config optionally overrides the server defaults for this batch.
	Config *ConfigOverrides `json:"config,omitempty"`
}

// ConfigOverrides carries per-request overrides of the batch defaults.
// Nil fields fall back to the values loaded from the environment.
type ConfigOverrides struct {
	StaticXHRConcurrency *int `json:"static_xhr_concurrency,omitempty" binding:"omitempty,min=1,max=500"`
	StaticXHRTimeout     *int `json:"static_xhr_timeout,omitempty" binding:"omitempty,min=1,max=300"`

	CustomJSServiceEndpoints []string `json:"custom_js_service_endpoints,omitempty"`
	CustomJSBatchSize        *int     `json:"custom_js_batch_size,omitempty" binding:"omitempty,min=1,max=100"`
	CustomJSCooldownSeconds  *int     `json:"custom_js_cooldown_seconds,omitempty" binding:"omitempty,min=0"`
	CustomJSTimeout          *int     `json:"custom_js_timeout,omitempty" binding:"omitempty,min=1"`
	CustomJSMaxRetries       *int     `json:"custom_js_max_retries,omitempty" binding:"omitempty,min=1,max=50"`
	CustomJSSkipDomains      []string `json:"custom_js_skip_domains,omitempty"`

	DecodoEnabled *bool `json:"decodo_enabled,omitempty"`
	DecodoTimeout *int  `json:"decodo_timeout,omitempty" binding:"omitempty,min=1"`

	MinContentLength *int `json:"min_content_length,omitempty" binding:"omitempty,min=0"`
	MinTextLength    *int `json:"min_text_length,omitempty" binding:"omitempty,min=0"`

	SaveOutputs *bool `json:"save_outputs,omitempty"`
}
