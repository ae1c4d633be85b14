package render

import (
	"context"

	"github.com/use-agent/pagerender/models"
)

// Launcher starts a browser process for a LaunchSpec.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single browser tab. Methods taking a context stop blocking when the
// context is done.
type Page interface {
	SetUserAgent(ua string) error
	SetViewport(width, height int) error

	// AddScriptOnNewDocument registers js to run before any page script on
	// every subsequent navigation.
	AddScriptOnNewDocument(js string) error

	// Intercept pauses every outgoing request and passes it to fn until ctx
	// is done or the page closes. fn is called from the event loop and must
	// not block.
	Intercept(ctx context.Context, fn func(*InterceptedRequest)) error

	// Navigate loads url and waits for the load event. It returns the
	// top-level document response.
	Navigate(ctx context.Context, url string) (*Response, error)

	// WaitFor blocks until an element matching the CSS selector or XPath
	// expression exists.
	WaitFor(ctx context.Context, condition string) error

	Eval(ctx context.Context, script string) (any, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// ResponseKind tags how a Response was produced.
type ResponseKind int

const (
	// ResponseNavigated is a response received from the server.
	ResponseNavigated ResponseKind = iota
	// ResponseSynthetic is a placeholder produced when navigation timed out.
	ResponseSynthetic
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseNavigated:
		return "navigated"
	case ResponseSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

// Response is the top-level document response of a navigation.
type Response struct {
	Kind    ResponseKind
	URL     string
	Status  int
	Headers map[string]string
	Request *RequestInfo

	// Err is the navigation error behind a synthetic response.
	Err error
}

// timeoutResponse is the placeholder used when navigation misses its deadline.
func timeoutResponse(err error) *Response {
	return &Response{
		Kind:    ResponseSynthetic,
		Status:  504,
		Headers: map[string]string{},
		Err:     err,
	}
}

// RequestInfo describes the request that produced a document response.
type RequestInfo = models.RequestInfo

// Cookie is a browser cookie visible to the rendered page.
type Cookie = models.Cookie
