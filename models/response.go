package models

import "time"

// RenderResponse is the response for POST /api/v1/render.
type RenderResponse struct {
	// Success indicates whether the render completed without errors. A
	// navigation timeout is still a success; see Synthetic.
	Success bool `json:"success"`

	// ID identifies this render in logs and webhook events.
	ID string `json:"id,omitempty"`

	// URL is the requested URL.
	URL string `json:"url"`

	// FinalURL is the document URL after redirects.
	FinalURL string `json:"final_url"`

	// StatusCode is the document response status: 504 when navigation timed
	// out, 0 when no response was observed.
	StatusCode int `json:"status_code"`

	// Synthetic marks a placeholder response produced by a navigation timeout.
	Synthetic bool `json:"synthetic,omitempty"`

	// Headers are the document response headers.
	Headers map[string]string `json:"headers"`

	// Request describes the request behind the document response. Absent
	// for synthetic responses.
	Request *RequestInfo `json:"request,omitempty"`

	// Cookies visible to the page after rendering.
	Cookies []Cookie `json:"cookies"`

	// ScriptResult is the value returned by the request's script.
	ScriptResult any `json:"script_result,omitempty"`

	// Content is the captured page in OutputFormat.
	Content string `json:"content"`

	// Format is the output format of Content.
	Format string `json:"format"`

	// Metadata contains extracted page metadata.
	Metadata Metadata `json:"metadata"`

	// Links is populated when the request sets include_links.
	Links *LinksResult `json:"links,omitempty"`

	// Tokens provides token estimates before and after conversion.
	Tokens TokenInfo `json:"tokens"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Changed compares ContentFingerprint against the previous render of the
	// same request held in the cache. Absent when there was none.
	Changed *bool `json:"changed,omitempty"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// RequestInfo describes the request that produced a document response.
type RequestInfo struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
}

// Cookie is a browser cookie visible to the rendered page.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitzero"`
	Size     int       `json:"size"`
	HTTPOnly bool      `json:"http_only"`
	Secure   bool      `json:"secure"`
	Session  bool      `json:"session"`
	SameSite string    `json:"same_site,omitempty"`
}

// LinksResult separates extracted links into internal and external groups.
type LinksResult struct {
	Internal []Link `json:"internal"`
	External []Link `json:"external"`
}

// Link represents a hyperlink extracted from the page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text,omitempty"`
}

// Metadata holds page-level information extracted from the captured HTML.
type Metadata struct {
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	SiteName      string `json:"site_name,omitempty"`
	Author        string `json:"author,omitempty"`
	Language      string `json:"language,omitempty"`
	OGTitle       string `json:"og_title,omitempty"`
	OGDescription string `json:"og_description,omitempty"`
	OGImage       string `json:"og_image,omitempty"`
	OGType        string `json:"og_type,omitempty"`
	SourceURL     string `json:"source_url"`

	// ContentFingerprint is a SimHash of the extracted text, as 16 hex
	// digits. Renders of an unchanged page differ in few bits.
	ContentFingerprint string `json:"content_fingerprint,omitempty"`

	// StructureFingerprint is a SimHash of the page's tag sequence.
	StructureFingerprint string `json:"structure_fingerprint,omitempty"`
}

// TokenInfo provides before/after token estimates to show conversion efficacy.
type TokenInfo struct {
	// OriginalEstimate is the estimated token count of the rendered HTML.
	OriginalEstimate int `json:"original_estimate"`

	// CleanedEstimate is the estimated token count of Content.
	CleanedEstimate int `json:"cleaned_estimate"`

	// SavingsPercent is the percentage of tokens removed (0-100).
	SavingsPercent float64 `json:"savings_percent"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// RenderMs covers browser launch, navigation, waiting and capture.
	RenderMs int64 `json:"render_ms"`

	// CleaningMs is the time spent extracting and converting content.
	CleaningMs int64 `json:"cleaning_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status      string      `json:"status"` // "healthy" or "degraded"
	Uptime      string      `json:"uptime"`
	RenderStats RenderStats `json:"render_stats"`
	Version     string      `json:"version"`
}

// RenderStats reports the load of the render service.
type RenderStats struct {
	MaxConcurrent int   `json:"max_concurrent"`
	Active        int   `json:"active"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
}
