package render

import (
	"maps"
	"slices"
	"time"
)

// capturedState accumulates page state during one Request.
type capturedState struct {
	url          string
	text         string
	cookies      []Cookie
	response     *Response
	scriptResult any
	duration     time.Duration
}

// Result is the immutable outcome of one render. Accessors return copies, so
// callers cannot change what other holders of the same Result see.
type Result struct {
	state capturedState
}

func newResult(st capturedState) *Result {
	st.cookies = slices.Clone(st.cookies)
	if st.response != nil {
		resp := *st.response
		resp.Headers = maps.Clone(resp.Headers)
		st.response = &resp
	}
	return &Result{state: st}
}

// Text is the full HTML of the page at harvest time.
func (r *Result) Text() string {
	return r.state.text
}

// Cookies are the cookies visible to the page URL.
func (r *Result) Cookies() []Cookie {
	return slices.Clone(r.state.cookies)
}

// Headers are the document response headers. Never nil.
func (r *Result) Headers() map[string]string {
	if r.state.response == nil || r.state.response.Headers == nil {
		return map[string]string{}
	}
	return maps.Clone(r.state.response.Headers)
}

// Status is the document response status code; 504 for a navigation timeout
// and 0 if no response was observed.
func (r *Result) Status() int {
	if r.state.response == nil {
		return 0
	}
	return r.state.response.Status
}

// Request describes the request behind the document response. It is nil for
// a synthetic response.
func (r *Result) Request() *RequestInfo {
	if r.state.response == nil || r.state.response.Request == nil {
		return nil
	}
	req := *r.state.response.Request
	req.Headers = maps.Clone(req.Headers)
	return &req
}

// ScriptResult is the value returned by RequestOptions.Script, or nil when no
// script was given. JSON numbers decode as float64.
func (r *Result) ScriptResult() any {
	return r.state.scriptResult
}

// URL is the URL that was requested.
func (r *Result) URL() string {
	return r.state.url
}

// FinalURL is the URL of the document response after redirects, falling back
// to the requested URL.
func (r *Result) FinalURL() string {
	if r.state.response != nil && r.state.response.URL != "" {
		return r.state.response.URL
	}
	return r.state.url
}

// Synthetic reports whether the response is a placeholder produced by a
// navigation timeout.
func (r *Result) Synthetic() bool {
	return r.state.response != nil && r.state.response.Kind == ResponseSynthetic
}

// NavigationErr is the error behind a synthetic response, nil otherwise.
func (r *Result) NavigationErr() error {
	if r.state.response == nil {
		return nil
	}
	return r.state.response.Err
}

// Duration is the wall time of the render, excluding teardown.
func (r *Result) Duration() time.Duration {
	return r.state.duration
}

// NewResult builds a Result from state captured outside a Session, such as
// by another driver. resp may be nil.
func NewResult(url, text string, cookies []Cookie, resp *Response, scriptResult any) *Result {
	return newResult(capturedState{
		url:          url,
		text:         text,
		cookies:      cookies,
		response:     resp,
		scriptResult: scriptResult,
	})
}
