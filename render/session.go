package render

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/stealth"
	"github.com/use-agent/pagerender/models"
)

// DefaultUserAgent is sent when RequestOptions.UserAgent is empty.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36"

const (
	// DefaultPageWidth and DefaultPageHeight are the viewport used when
	// RequestOptions leaves them unset.
	DefaultPageWidth  = 800
	DefaultPageHeight = 600

	// DefaultNavigationTimeout is the deadline for navigation to reach the
	// load event. Missing it yields a synthetic 504 response, not an error.
	DefaultNavigationTimeout = 30 * time.Second

	// DefaultWaitTimeout bounds RequestOptions.WaitFor.
	DefaultWaitTimeout = 30 * time.Second
)

// StealthScripts is the ordered anti-detection set injected before navigation
// when RequestOptions.Stealth is on.
var StealthScripts = []string{stealth.JS}

// RequestOptions are the per-call settings of Session.Request.
type RequestOptions struct {
	// UserAgent overrides DefaultUserAgent.
	UserAgent string

	// PageWidth and PageHeight set the viewport. Default: 800x600.
	PageWidth  int
	PageHeight int

	// Stealth injects StealthScripts before navigation. Default: true.
	Stealth *bool

	// ExtraScripts run on every new document after StealthScripts,
	// regardless of Stealth.
	ExtraScripts []string

	// Interception pauses every outgoing request and hands it to Interceptor.
	// Default: false. The resolved value is stored on the session.
	Interception *bool

	// Interceptor handles paused requests. Nil uses LogInterceptor.
	Interceptor Interceptor

	// Dispatch selects whether handlers are awaited before teardown.
	Dispatch Dispatch

	// Delay is slept after navigation, before WaitFor.
	Delay time.Duration

	// WaitFor is a CSS selector, or an XPath expression when it starts with
	// "//" or "(", that must match before the page is harvested.
	WaitFor string

	// Script is evaluated in the page just before harvesting. Its result is
	// available as Result.ScriptResult.
	Script string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLauncher replaces the go-rod launcher.
func WithLauncher(l Launcher) SessionOption {
	return func(s *Session) { s.launcher = l }
}

// WithNavigationTimeout overrides DefaultNavigationTimeout.
func WithNavigationTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.navTimeout = d
		}
	}
}

// WithWaitTimeout overrides DefaultWaitTimeout.
func WithWaitTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.waitTimeout = d
		}
	}
}

// WithLogger sets the logger used by the session and its default interceptor.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session owns one browser process at a time and renders pages with it.
//
// The browser is launched lazily by Init (or the first Request) and closed at
// the end of every Request, so each Request runs in a fresh browser. A Session
// must not run two Requests at once: closing the browser at the end of one
// would tear down the other's page.
type Session struct {
	spec        LaunchSpec
	launcher    Launcher
	navTimeout  time.Duration
	waitTimeout time.Duration
	logger      *slog.Logger

	mu           sync.Mutex
	browser      Browser
	initialized  bool
	interception bool
}

// NewSession prepares a session. No browser is started until Init.
func NewSession(cfg LaunchConfig, opts ...SessionOption) *Session {
	s := &Session{
		spec:        cfg.Spec(),
		navTimeout:  DefaultNavigationTimeout,
		waitTimeout: DefaultWaitTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.launcher == nil {
		s.launcher = RodLauncher{Logger: s.logger}
	}
	return s
}

// LaunchSpec returns the normalized launch settings.
func (s *Session) LaunchSpec() LaunchSpec {
	spec := s.spec
	spec.Args = append([]string(nil), s.spec.Args...)
	return spec
}

// Init launches the browser if it is not running. Repeated calls are no-ops.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	browser, err := s.launcher.Launch(ctx, s.spec)
	if err != nil {
		return models.NewRenderError(models.ErrCodeLaunch, "failed to launch browser", err)
	}
	s.browser = browser
	s.initialized = true
	s.logger.Debug("session initialized", "headless", s.spec.Headless, "args", s.spec.Args)
	return nil
}

// Initialized reports whether a browser is currently running.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// EnableInterception sets the session's interception toggle. Each Request
// overwrites it with RequestOptions.Interception (false when nil) before
// arming interception.
func (s *Session) EnableInterception(enabled bool) {
	s.mu.Lock()
	s.interception = enabled
	s.mu.Unlock()
}

func (s *Session) interceptionEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interception
}

// Request renders url and returns the captured page state.
//
// Lifecycle:
//
//  1. Init                 – launch the browser if needed
//  2. DEFER: teardown      – close page and browser on every path from here on
//  3. New page             – user agent, viewport
//  4. Stealth injection    – before navigation, so it applies to the target document
//  5. Interception         – armed before navigation to see every request
//  6. Navigate             – wait for "load"; a timeout becomes a synthetic 504
//  7. Delay, then WaitFor
//  8. Script
//  9. Harvest              – cookies, HTML, response metadata
func (s *Session) Request(ctx context.Context, url string, opts RequestOptions) (*Result, error) {
	start := time.Now()

	// ── 1. Init ───────────────────────────────────────────────────────
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	browser := s.browser
	s.mu.Unlock()

	width := opts.PageWidth
	if width <= 0 {
		width = DefaultPageWidth
	}
	height := opts.PageHeight
	if height <= 0 {
		height = DefaultPageHeight
	}

	// Interception listeners live until teardown.
	listenCtx, stopListening := context.WithCancel(ctx)
	var disp *dispatcher

	// ── 2. Teardown ───────────────────────────────────────────────────
	var (
		page Page
		err  error
	)
	defer func() {
		stopListening()
		if disp != nil {
			if werr := disp.wait(awaitHandlersTimeout); werr != nil {
				s.logger.Warn("interception handlers did not finish cleanly", "url", url, "error", werr)
			}
			if n := disp.pending.Load(); n > 0 {
				s.logger.Debug("closing page with interception handlers still running", "url", url, "pending", n)
			}
		}
		if cerr := s.Close(page); cerr != nil {
			s.logger.Warn("teardown failed", "url", url, "error", cerr)
		}
	}()

	// ── 3. Page setup ─────────────────────────────────────────────────
	page, err = browser.NewPage(ctx)
	if err != nil {
		return nil, models.NewRenderError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	if err := page.SetUserAgent(ua); err != nil {
		return nil, models.NewRenderError(models.ErrCodeBrowserCrash, "failed to set user agent", err)
	}
	if err := page.SetViewport(width, height); err != nil {
		return nil, models.NewRenderError(models.ErrCodeBrowserCrash, "failed to set viewport", err)
	}

	// ── 4. Stealth injection ──────────────────────────────────────────
	scripts := opts.ExtraScripts
	if boolOr(opts.Stealth, true) {
		scripts = append(append([]string(nil), StealthScripts...), opts.ExtraScripts...)
	}
	for _, js := range scripts {
		if err := page.AddScriptOnNewDocument(js); err != nil {
			return nil, models.NewRenderError(models.ErrCodeBrowserCrash, "failed to inject script", err)
		}
	}

	// ── 5. Interception ───────────────────────────────────────────────
	s.EnableInterception(boolOr(opts.Interception, false))
	if s.interceptionEnabled() {
		handler := opts.Interceptor
		if err := checkInterceptor(handler); err != nil {
			return nil, err
		}
		if handler == nil {
			handler = LogInterceptor(s.logger)
		}
		disp = newDispatcher(ctx, handler, opts.Dispatch, s.logger)
		if err := page.Intercept(listenCtx, disp.dispatch); err != nil {
			return nil, models.NewRenderError(models.ErrCodeBrowserCrash, "failed to enable request interception", err)
		}
	}

	// ── 6. Navigate ───────────────────────────────────────────────────
	resp, err := s.navigate(ctx, page, url)
	if err != nil {
		return nil, err
	}

	// ── 7. Delay and wait condition ───────────────────────────────────
	if opts.Delay > 0 {
		if err := sleep(ctx, opts.Delay); err != nil {
			return nil, err
		}
	}
	if opts.WaitFor != "" {
		waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout)
		err := page.WaitFor(waitCtx, opts.WaitFor)
		cancel()
		if err != nil {
			return nil, models.NewRenderError(models.ErrCodeWait, "wait condition "+opts.WaitFor+" not met", err)
		}
	}

	// ── 8. Script ─────────────────────────────────────────────────────
	var scriptResult any
	if opts.Script != "" {
		scriptResult, err = page.Eval(ctx, opts.Script)
		if err != nil {
			return nil, models.NewRenderError(models.ErrCodeScript, "script evaluation failed", err)
		}
	}

	// ── 9. Harvest ────────────────────────────────────────────────────
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return nil, models.NewRenderError(models.ErrCodeBrowserCrash, "failed to read cookies", err)
	}
	text, err := page.HTML(ctx)
	if err != nil {
		return nil, models.NewRenderError(models.ErrCodeBrowserCrash, "failed to read page HTML", err)
	}

	return newResult(capturedState{
		url:          url,
		text:         text,
		cookies:      cookies,
		response:     resp,
		scriptResult: scriptResult,
		duration:     time.Since(start),
	}), nil
}

// navigate loads url under the navigation timeout. A missed deadline is
// reported as a synthetic 504 response; cancellation by the caller and every
// other failure are returned as errors.
func (s *Session) navigate(ctx context.Context, page Page, url string) (*Response, error) {
	navCtx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	resp, err := page.Navigate(navCtx, url)
	if err == nil {
		if resp == nil {
			resp = &Response{Kind: ResponseNavigated, Headers: map[string]string{}}
		}
		return resp, nil
	}

	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("navigation timed out, returning synthetic response",
			"url", url, "timeout", s.navTimeout, "error", err)
		return timeoutResponse(err), nil
	}
	if ctx.Err() != nil {
		return nil, models.NewRenderError(models.ErrCodeTimeout, "request canceled", err)
	}
	return nil, models.NewRenderError(models.ErrCodeNavigation, "navigation to "+url+" failed", err)
}

// Close closes page (if non-nil), then the browser, and marks the session
// uninitialized. Errors from both steps are joined.
func (s *Session) Close(page Page) error {
	var errs []error
	if page != nil {
		if err := page.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.browser = nil
	s.initialized = false
	return errors.Join(errs...)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return models.NewRenderError(models.ErrCodeTimeout, "request canceled", ctx.Err())
	}
}
