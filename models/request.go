package models

// RenderRequest is the payload for POST /api/v1/render.
type RenderRequest struct {
	// URL is the page to render. Required.
	URL string `json:"url" binding:"required"`

	// UserAgent overrides the default user agent.
	UserAgent string `json:"user_agent,omitempty"`

	// PageWidth and PageHeight set the viewport. Default: 800x600.
	PageWidth  int `json:"page_width,omitempty" binding:"omitempty,min=1,max=7680"`
	PageHeight int `json:"page_height,omitempty" binding:"omitempty,min=1,max=4320"`

	// Stealth injects anti-detection scripts before navigation.
	// Default: true.
	Stealth *bool `json:"stealth,omitempty"`

	// Intercept pauses every outgoing request and hands it to Interceptor.
	Intercept bool `json:"intercept,omitempty"`

	// Interceptor selects the handler for intercepted requests.
	// Allowed: "log" (default), "block", "continue".
	Interceptor string `json:"interceptor,omitempty"`

	// AwaitInterceptors waits for interception handlers before the page is
	// closed.
	AwaitInterceptors bool `json:"await_interceptors,omitempty"`

	// DelayMs is slept after navigation, before WaitFor.
	DelayMs int `json:"delay_ms,omitempty" binding:"omitempty,min=0,max=60000"`

	// WaitFor is a CSS selector or XPath expression that must match before
	// the page is captured.
	WaitFor string `json:"wait_for,omitempty"`

	// Script is evaluated in the page before capture.
	Script string `json:"script,omitempty"`

	// Timeout is the maximum duration in seconds for the whole render,
	// including browser launch and teardown.
	// Default: 60. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// OutputFormat controls the content field.
	// Allowed: "html" (default, the full rendered page), "markdown", "text".
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=html markdown text"`

	// ExtractMode controls main-content extraction before format conversion.
	// "raw" (default) keeps the whole page; "readability", "pruning" and
	// "auto" strip boilerplate.
	ExtractMode string `json:"extract_mode,omitempty" binding:"omitempty,oneof=raw readability pruning auto"`

	// CSSSelector keeps only the matching elements before extraction.
	CSSSelector string `json:"css_selector,omitempty"`

	// IncludeTags and ExcludeTags filter elements by CSS selector.
	IncludeTags []string `json:"include_tags,omitempty"`
	ExcludeTags []string `json:"exclude_tags,omitempty"`

	// Citations rewrites markdown inline links as numbered references.
	Citations bool `json:"citations,omitempty"`

	// IncludeLinks adds the page's internal and external links to the response.
	IncludeLinks bool `json:"include_links,omitempty"`

	// MaxAge serves a cached response younger than this many milliseconds.
	// 0 disables the cache.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// WebhookURL receives a "render.completed" event when set. The render is
	// still returned synchronously.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// Defaults applies default values to unset fields.
func (r *RenderRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 60
	}
	if r.OutputFormat == "" {
		r.OutputFormat = "html"
	}
	if r.ExtractMode == "" {
		r.ExtractMode = "raw"
	}
	if r.Interceptor == "" {
		r.Interceptor = "log"
	}
}
