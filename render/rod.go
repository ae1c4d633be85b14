package render

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// responseSettle bounds how long Navigate waits for the document response
// event after the load event has fired.
const responseSettle = time.Second

// RodLauncher starts Chromium through go-rod's launcher.
type RodLauncher struct {
	Logger *slog.Logger
}

// Launch starts the browser process and connects to it.
func (rl RodLauncher) Launch(ctx context.Context, spec LaunchSpec) (Browser, error) {
	logger := rl.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := launcher.New().
		Headless(spec.Headless).
		Leakless(spec.AutoClose)

	if spec.ExecutablePath != "" {
		l = l.Bin(spec.ExecutablePath)
	}
	if spec.UserDataDir != "" {
		l = l.UserDataDir(spec.UserDataDir)
	}

	// Automation masking, applied to every launch.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))

	for _, arg := range spec.Args {
		name, value := splitFlag(arg)
		if name == "" {
			continue
		}
		if value == "" {
			l.Set(flags.Flag(name))
		} else {
			l.Set(flags.Flag(name), value)
		}
	}

	type launched struct {
		url string
		err error
	}
	ch := make(chan launched, 1)
	go func() {
		u, err := l.Launch()
		ch <- launched{u, err}
	}()

	var controlURL string
	select {
	case <-ctx.Done():
		l.Kill()
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		controlURL = res.url
	}
	logger.Debug("browser launched", "controlURL", controlURL, "headless", spec.Headless)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	return &rodBrowser{
		browser:     browser,
		launcher:    l,
		tempProfile: spec.UserDataDir == "",
	}, nil
}

type rodBrowser struct {
	browser     *rod.Browser
	launcher    *launcher.Launcher
	tempProfile bool
}

func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	// The page is created without ctx so that Close still works after the
	// request context has expired.
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		_ = page.Close()
		return nil, err
	}
	return &rodPage{page: page}, nil
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	if b.tempProfile {
		// Cleanup waits for the process to exit, then removes the
		// temporary profile directory.
		b.launcher.Cleanup()
	} else if err != nil {
		b.launcher.Kill()
	}
	return err
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) SetUserAgent(ua string) error {
	return p.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
}

func (p *rodPage) SetViewport(width, height int) error {
	return p.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
}

func (p *rodPage) AddScriptOnNewDocument(js string) error {
	_, err := p.page.EvalOnNewDocument(js)
	return err
}

func (p *rodPage) Intercept(ctx context.Context, fn func(*InterceptedRequest)) error {
	err := proto.FetchEnable{
		Patterns: []*proto.FetchRequestPattern{{URLPattern: "*"}},
	}.Call(p.page)
	if err != nil {
		return err
	}

	wait := p.page.Context(ctx).EachEvent(func(e *proto.FetchRequestPaused) {
		req := &InterceptedRequest{
			ID:           string(e.RequestID),
			ResourceType: string(e.ResourceType),
			resolver:     p,
		}
		if e.Request != nil {
			req.URL = e.Request.URL
			req.Method = e.Request.Method
			req.Headers = headersToMap(e.Request.Headers)
		}
		fn(req)
	})
	go wait()
	return nil
}

func (p *rodPage) continueRequest(ctx context.Context, id string) error {
	return proto.FetchContinueRequest{RequestID: proto.FetchRequestID(id)}.Call(p.page.Context(ctx))
}

func (p *rodPage) failRequest(ctx context.Context, id, reason string) error {
	return proto.FetchFailRequest{
		RequestID:   proto.FetchRequestID(id),
		ErrorReason: proto.NetworkErrorReason(reason),
	}.Call(p.page.Context(ctx))
}

func (p *rodPage) Navigate(ctx context.Context, url string) (*Response, error) {
	capture := newDocumentCapture(p.page.FrameID)

	listenCtx, stop := context.WithCancel(ctx)
	defer stop()
	wait := p.page.Context(listenCtx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			capture.request(e)
		},
		func(e *proto.NetworkResponseReceived) {
			capture.response(e)
		},
	)
	go wait()

	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return nil, err
	}
	if err := pg.WaitLoad(); err != nil {
		return nil, err
	}
	return capture.result(ctx, responseSettle), nil
}

func (p *rodPage) WaitFor(ctx context.Context, condition string) error {
	pg := p.page.Context(ctx)
	if isXPath(condition) {
		_, err := pg.ElementX(condition)
		return err
	}
	_, err := pg.Element(condition)
	return err
}

func (p *rodPage) Eval(ctx context.Context, script string) (any, error) {
	res, err := p.page.Context(ctx).Eval(script)
	if err != nil {
		return nil, err
	}
	return res.Value.Val(), nil
}

func (p *rodPage) Cookies(ctx context.Context) ([]Cookie, error) {
	raw, err := p.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, err
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Size:     c.Size,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			Session:  c.Session,
			SameSite: string(c.SameSite),
		}
		if !c.Session && c.Expires > 0 {
			cookie.Expires = c.Expires.Time()
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

// isXPath reports whether a wait condition is an XPath expression rather
// than a CSS selector.
func isXPath(condition string) bool {
	return strings.HasPrefix(condition, "//") || strings.HasPrefix(condition, "(")
}

// headersToMap flattens CDP headers into plain strings.
func headersToMap(h proto.NetworkHeaders) map[string]string {
	m := make(map[string]string, len(h))
	for k, v := range h {
		m[k] = jsonString(v)
	}
	return m
}

func jsonString(v gson.JSON) string {
	if s, ok := v.Val().(string); ok {
		return s
	}
	return v.String()
}

// documentCapture records the top-level document request and response of a
// navigation. Redirects replace earlier entries; the last document wins.
type documentCapture struct {
	frameID proto.PageFrameID

	mu       sync.Mutex
	requests map[proto.NetworkRequestID]*RequestInfo
	resp     *Response
	got      chan struct{}
	once     sync.Once
}

func newDocumentCapture(frameID proto.PageFrameID) *documentCapture {
	return &documentCapture{
		frameID:  frameID,
		requests: make(map[proto.NetworkRequestID]*RequestInfo),
		got:      make(chan struct{}),
	}
}

func (c *documentCapture) isMainDocument(t proto.NetworkResourceType, frameID proto.PageFrameID) bool {
	if t != proto.NetworkResourceTypeDocument {
		return false
	}
	return frameID == "" || c.frameID == "" || frameID == c.frameID
}

func (c *documentCapture) request(e *proto.NetworkRequestWillBeSent) {
	if e.Request == nil || !c.isMainDocument(e.Type, e.FrameID) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests[e.RequestID] = &RequestInfo{
		URL:     e.Request.URL,
		Method:  e.Request.Method,
		Headers: headersToMap(e.Request.Headers),
	}
}

func (c *documentCapture) response(e *proto.NetworkResponseReceived) {
	if e.Response == nil || !c.isMainDocument(e.Type, e.FrameID) {
		return
	}
	c.mu.Lock()
	c.resp = &Response{
		Kind:    ResponseNavigated,
		URL:     e.Response.URL,
		Status:  e.Response.Status,
		Headers: headersToMap(e.Response.Headers),
		Request: c.requests[e.RequestID],
	}
	c.mu.Unlock()
	c.once.Do(func() { close(c.got) })
}

// result returns the captured response, waiting up to settle for the event
// to be delivered. Navigations without a network response (about:blank,
// data URLs) yield a zero-status response.
func (c *documentCapture) result(ctx context.Context, settle time.Duration) *Response {
	timer := time.NewTimer(settle)
	defer timer.Stop()
	select {
	case <-c.got:
	case <-timer.C:
	case <-ctx.Done():
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resp == nil {
		return &Response{Kind: ResponseNavigated, Headers: map[string]string{}}
	}
	resp := *c.resp
	return &resp
}
