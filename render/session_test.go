package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/pagerender/models"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestSession(l *fakeLauncher, opts ...SessionOption) *Session {
	opts = append([]SessionOption{WithLauncher(l), WithLogger(quietLogger)}, opts...)
	return NewSession(LaunchConfig{}, opts...)
}

func TestInit_Idempotent(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(l)
	ctx := context.Background()

	if s.Initialized() {
		t.Fatal("new session should not be initialized")
	}
	if l.launchCount() != 0 {
		t.Fatal("NewSession must not launch the browser")
	}
	for i := 0; i < 3; i++ {
		if err := s.Init(ctx); err != nil {
			t.Fatalf("Init #%d: %v", i, err)
		}
	}
	if got := l.launchCount(); got != 1 {
		t.Errorf("launches = %d, want 1", got)
	}
	if !s.Initialized() {
		t.Error("session should be initialized after Init")
	}

	if err := s.Close(nil); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.Initialized() {
		t.Error("session should be uninitialized after Close")
	}
}

func TestInit_LaunchFailure(t *testing.T) {
	l := &fakeLauncher{err: errBoom}
	s := newTestSession(l)

	_, err := s.Request(context.Background(), "https://example.com", RequestOptions{})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want wrapped errBoom", err)
	}
	var re *models.RenderError
	if !errors.As(err, &re) || re.Code != models.ErrCodeLaunch {
		t.Errorf("err = %v, want code %s", err, models.ErrCodeLaunch)
	}
	if s.Initialized() {
		t.Error("failed launch must leave the session uninitialized")
	}
}

func TestRequest_Success(t *testing.T) {
	l := &fakeLauncher{newPage: func() *fakePage {
		return &fakePage{
			html:    "<html><body>hello</body></html>",
			cookies: []Cookie{{Name: "sid", Value: "abc", Domain: "example.com", Path: "/"}},
		}
	}}
	s := newTestSession(l)

	res, err := s.Request(context.Background(), "https://example.com", RequestOptions{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	if res.Status() != 200 {
		t.Errorf("status = %d, want 200", res.Status())
	}
	if res.Text() != "<html><body>hello</body></html>" {
		t.Errorf("text = %q", res.Text())
	}
	if cookies := res.Cookies(); len(cookies) != 1 || cookies[0].Name != "sid" || cookies[0].Value != "abc" {
		t.Errorf("cookies = %+v", cookies)
	}
	if res.Headers()["Content-Type"] != "text/html" {
		t.Errorf("headers = %v", res.Headers())
	}
	if req := res.Request(); req == nil || req.URL != "https://example.com" {
		t.Errorf("request = %+v", req)
	}
	if res.ScriptResult() != nil {
		t.Errorf("script result = %v, want nil without a script", res.ScriptResult())
	}
	if res.Synthetic() {
		t.Error("navigated response reported as synthetic")
	}

	page := l.lastBrowser().page
	if page.userAgent != DefaultUserAgent {
		t.Errorf("user agent = %q, want default", page.userAgent)
	}
	if page.width != DefaultPageWidth || page.height != DefaultPageHeight {
		t.Errorf("viewport = %dx%d, want 800x600", page.width, page.height)
	}
	if !slices.Equal(page.scripts, StealthScripts) {
		t.Errorf("injected %d scripts, want the stealth set", len(page.scripts))
	}
	if page.intercepting {
		t.Error("interception should be off by default")
	}
	if !page.isClosed() || !l.lastBrowser().isClosed() {
		t.Error("page and browser must be closed after Request")
	}
	if s.Initialized() {
		t.Error("session must be uninitialized after Request")
	}
}

func TestRequest_CustomOptions(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(l)

	opts := RequestOptions{
		UserAgent:    "test-agent/1.0",
		PageWidth:    1366,
		PageHeight:   768,
		Stealth:      Bool(false),
		ExtraScripts: []string{"window.__x = 1"},
	}
	if _, err := s.Request(context.Background(), "https://example.com", opts); err != nil {
		t.Fatalf("Request: %v", err)
	}

	page := l.lastBrowser().page
	if page.userAgent != "test-agent/1.0" {
		t.Errorf("user agent = %q", page.userAgent)
	}
	if page.width != 1366 || page.height != 768 {
		t.Errorf("viewport = %dx%d", page.width, page.height)
	}
	if !slices.Equal(page.scripts, []string{"window.__x = 1"}) {
		t.Errorf("scripts = %v, want only the extra script", page.scripts)
	}
}

func TestRequest_NavigationTimeout(t *testing.T) {
	l := &fakeLauncher{newPage: func() *fakePage {
		return &fakePage{navigate: hang}
	}}
	s := newTestSession(l, WithNavigationTimeout(50*time.Millisecond))

	start := time.Now()
	res, err := s.Request(context.Background(), "http://10.255.255.1/", RequestOptions{})
	if err != nil {
		t.Fatalf("timeout must not be returned as an error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Request took %v, expected to finish shortly after the timeout", elapsed)
	}

	if res.Status() != 504 {
		t.Errorf("status = %d, want 504", res.Status())
	}
	if res.Request() != nil {
		t.Errorf("request = %+v, want nil", res.Request())
	}
	if h := res.Headers(); h == nil || len(h) != 0 {
		t.Errorf("headers = %v, want empty map", h)
	}
	if !res.Synthetic() {
		t.Error("timeout response should be synthetic")
	}
	if !errors.Is(res.NavigationErr(), context.DeadlineExceeded) {
		t.Errorf("navigation err = %v", res.NavigationErr())
	}
	if res.Text() == "" {
		t.Error("page HTML should still be harvested after a timeout")
	}
	if !l.lastBrowser().page.isClosed() || !l.lastBrowser().isClosed() {
		t.Error("teardown must run on the timeout path")
	}
	if s.Initialized() {
		t.Error("session must be uninitialized after a timed-out Request")
	}
}

func TestRequest_CallerCancellationIsAnError(t *testing.T) {
	l := &fakeLauncher{newPage: func() *fakePage {
		return &fakePage{navigate: hang}
	}}
	s := newTestSession(l)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := s.Request(ctx, "https://example.com", RequestOptions{})
	if err == nil {
		t.Fatal("expected an error when the caller's context expires")
	}
	if !l.lastBrowser().isClosed() {
		t.Error("browser must be closed on error")
	}
}

func TestRequest_NavigationFailurePropagates(t *testing.T) {
	l := &fakeLauncher{newPage: func() *fakePage {
		return &fakePage{navigate: func(context.Context, string) (*Response, error) {
			return nil, errBoom
		}}
	}}
	s := newTestSession(l)

	_, err := s.Request(context.Background(), "not a url", RequestOptions{})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want wrapped errBoom", err)
	}
	var re *models.RenderError
	if !errors.As(err, &re) || re.Code != models.ErrCodeNavigation {
		t.Errorf("code = %v, want %s", err, models.ErrCodeNavigation)
	}
	if !l.lastBrowser().page.isClosed() {
		t.Error("page must be closed on navigation failure")
	}
}

func TestRequest_InvalidHandlerRejectedBeforeNavigation(t *testing.T) {
	var nilFunc InterceptorFunc
	var nilPtr *ptrInterceptor
	cases := []struct {
		name    string
		handler Interceptor
	}{
		{"nil func", nilFunc},
		{"typed nil pointer", nilPtr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := &fakeLauncher{}
			s := newTestSession(l)

			_, err := s.Request(context.Background(), "https://example.com", RequestOptions{
				Interception: Bool(true),
				Interceptor:  tc.handler,
			})
			if !errors.Is(err, ErrInvalidHandler) {
				t.Fatalf("err = %v, want ErrInvalidHandler", err)
			}

			page := l.lastBrowser().page
			if len(page.navigated) != 0 {
				t.Errorf("navigation started despite invalid handler: %v", page.navigated)
			}
			if page.intercepting {
				t.Error("interception armed despite invalid handler")
			}
			if !l.lastBrowser().isClosed() {
				t.Error("browser must be closed after rejection")
			}
		})
	}
}

func TestRequest_InvalidHandlerIgnoredWhenInterceptionOff(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(l)

	var nilHandler InterceptorFunc
	if _, err := s.Request(context.Background(), "https://example.com", RequestOptions{Interceptor: nilHandler}); err != nil {
		t.Fatalf("Request: %v", err)
	}
}

func TestRequest_ScriptResult(t *testing.T) {
	l := &fakeLauncher{newPage: func() *fakePage {
		return &fakePage{evalResult: float64(42)}
	}}
	s := newTestSession(l)

	res, err := s.Request(context.Background(), "https://example.com", RequestOptions{Script: "() => 42"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if res.ScriptResult() != float64(42) {
		t.Errorf("script result = %v (%T), want 42", res.ScriptResult(), res.ScriptResult())
	}
	if got := l.lastBrowser().page.evaluated; !slices.Equal(got, []string{"() => 42"}) {
		t.Errorf("evaluated = %v", got)
	}
}

func TestRequest_ScriptFailure(t *testing.T) {
	l := &fakeLauncher{newPage: func() *fakePage {
		return &fakePage{evalErr: errBoom}
	}}
	s := newTestSession(l)

	_, err := s.Request(context.Background(), "https://example.com", RequestOptions{Script: "throw 1"})
	var re *models.RenderError
	if !errors.As(err, &re) || re.Code != models.ErrCodeScript {
		t.Fatalf("err = %v, want code %s", err, models.ErrCodeScript)
	}
	if !l.lastBrowser().isClosed() || s.Initialized() {
		t.Error("teardown must run after a script failure")
	}
}

func TestRequest_WaitForAndDelay(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(l)

	start := time.Now()
	_, err := s.Request(context.Background(), "https://example.com", RequestOptions{
		Delay:   20 * time.Millisecond,
		WaitFor: "#content",
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("delay was not applied")
	}
	if got := l.lastBrowser().page.waitedFor; !slices.Equal(got, []string{"#content"}) {
		t.Errorf("waited for %v", got)
	}
}

func TestRequest_WaitForFailure(t *testing.T) {
	l := &fakeLauncher{newPage: func() *fakePage {
		return &fakePage{waitErr: context.DeadlineExceeded}
	}}
	s := newTestSession(l)

	_, err := s.Request(context.Background(), "https://example.com", RequestOptions{WaitFor: "//div"})
	var re *models.RenderError
	if !errors.As(err, &re) || re.Code != models.ErrCodeWait {
		t.Fatalf("err = %v, want code %s", err, models.ErrCodeWait)
	}
	if !l.lastBrowser().page.isClosed() {
		t.Error("page must be closed after a wait failure")
	}
}

func TestRequest_RelaunchesAfterClose(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(l)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.Request(ctx, "https://example.com", RequestOptions{}); err != nil {
			t.Fatalf("Request #%d: %v", i, err)
		}
		if s.Initialized() {
			t.Fatalf("session initialized after Request #%d", i)
		}
	}
	if got := l.launchCount(); got != 2 {
		t.Errorf("launches = %d, want 2", got)
	}

	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if got := l.launchCount(); got != 3 {
		t.Errorf("launches after Init = %d, want 3", got)
	}
	_ = s.Close(nil)
}

func TestRequest_DefaultInterceptorContinues(t *testing.T) {
	l := &fakeLauncher{newPage: func() *fakePage {
		return &fakePage{paused: []pausedRequest{
			{id: "1", url: "https://example.com/", resourceType: "Document"},
			{id: "2", url: "https://example.com/app.js", resourceType: "Script"},
		}}
	}}
	s := newTestSession(l)

	_, err := s.Request(context.Background(), "https://example.com", RequestOptions{
		Interception: Bool(true),
		Dispatch:     DispatchAwait,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	page := l.lastBrowser().page
	if !page.intercepting {
		t.Fatal("interception not armed")
	}
	got := page.continuedIDs()
	slices.Sort(got)
	if !slices.Equal(got, []string{"1", "2"}) {
		t.Errorf("continued = %v, want [1 2]", got)
	}
	if len(page.failedReasons()) != 0 {
		t.Errorf("default interceptor must never abort: %v", page.failedReasons())
	}
}

func TestRequest_DetachedHandlerRuns(t *testing.T) {
	l := &fakeLauncher{newPage: func() *fakePage {
		return &fakePage{paused: []pausedRequest{{id: "1", url: "https://example.com/"}}}
	}}
	s := newTestSession(l)

	seen := make(chan string, 1)
	handler := InterceptorFunc(func(ctx context.Context, req *InterceptedRequest) error {
		seen <- req.URL
		return req.Continue(ctx)
	})

	_, err := s.Request(context.Background(), "https://example.com", RequestOptions{
		Interception: Bool(true),
		Interceptor:  handler,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	select {
	case u := <-seen:
		if u != "https://example.com/" {
			t.Errorf("handler saw %q", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("detached handler never ran")
	}
}

func TestRequest_AwaitDispatchWaitsBeforeTeardown(t *testing.T) {
	l := &fakeLauncher{newPage: func() *fakePage {
		return &fakePage{paused: []pausedRequest{{id: "1", url: "https://example.com/"}}}
	}}
	s := newTestSession(l)

	var pageOpenWhenDone atomic.Bool
	handler := InterceptorFunc(func(ctx context.Context, req *InterceptedRequest) error {
		time.Sleep(30 * time.Millisecond)
		pageOpenWhenDone.Store(!l.lastBrowser().page.isClosed())
		return nil // left unresolved on purpose
	})

	_, err := s.Request(context.Background(), "https://example.com", RequestOptions{
		Interception: Bool(true),
		Interceptor:  handler,
		Dispatch:     DispatchAwait,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !pageOpenWhenDone.Load() {
		t.Error("awaited handler finished after the page was closed")
	}
	if got := l.lastBrowser().page.continuedIDs(); !slices.Equal(got, []string{"1"}) {
		t.Errorf("unresolved request should be continued, got %v", got)
	}
}

func TestRequest_ListenerStoppedBeforeAwait(t *testing.T) {
	page := &fakePage{paused: []pausedRequest{{id: "1", url: "https://example.com/"}}}
	l := &fakeLauncher{newPage: func() *fakePage { return page }}
	s := newTestSession(l)

	var listenerStopped, handlerCtxLive atomic.Bool
	handler := InterceptorFunc(func(ctx context.Context, req *InterceptedRequest) error {
		time.Sleep(30 * time.Millisecond)
		page.mu.Lock()
		listenerStopped.Store(page.listenCtx.Err() != nil)
		page.mu.Unlock()
		handlerCtxLive.Store(ctx.Err() == nil)
		return req.Continue(ctx)
	})

	_, err := s.Request(context.Background(), "https://example.com", RequestOptions{
		Interception: Bool(true),
		Interceptor:  handler,
		Dispatch:     DispatchAwait,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !listenerStopped.Load() {
		t.Error("interception listener should stop before awaiting handlers")
	}
	if !handlerCtxLive.Load() {
		t.Error("awaited handler context should stay usable during teardown")
	}
	if got := page.continuedIDs(); !slices.Equal(got, []string{"1"}) {
		t.Errorf("continued %v, want [1]", got)
	}
}

func TestRequest_InterceptionDefaultsOffEachCall(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(l)
	ctx := context.Background()

	if _, err := s.Request(ctx, "https://example.com", RequestOptions{Interception: Bool(true)}); err != nil {
		t.Fatal(err)
	}
	if !l.lastBrowser().page.intercepting {
		t.Error("Interception: true should enable interception")
	}
	if !s.interceptionEnabled() {
		t.Error("resolved toggle should be stored on the session")
	}

	if _, err := s.Request(ctx, "https://example.com", RequestOptions{}); err != nil {
		t.Fatal(err)
	}
	if l.lastBrowser().page.intercepting {
		t.Error("request with default options should not intercept")
	}
	if s.interceptionEnabled() {
		t.Error("default request should reset the session toggle to false")
	}

	s.EnableInterception(true)
	if _, err := s.Request(ctx, "https://example.com", RequestOptions{}); err != nil {
		t.Fatal(err)
	}
	if l.lastBrowser().page.intercepting {
		t.Error("unset option resolves to false regardless of the previous toggle")
	}
}

func TestRequest_NewPageFailureClosesBrowser(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(l)
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	l.lastBrowser().pageErr = errBoom

	_, err := s.Request(context.Background(), "https://example.com", RequestOptions{})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want errBoom", err)
	}
	if !l.lastBrowser().isClosed() || s.Initialized() {
		t.Error("browser must be closed when the page cannot be opened")
	}
}

func TestGet_OneShot(t *testing.T) {
	l := &fakeLauncher{}
	res, err := Get(context.Background(), "https://example.com", LaunchConfig{WindowWidth: 1024, WindowHeight: 768},
		RequestOptions{Script: "1 + 1"}, WithLauncher(l), WithLogger(quietLogger))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res.Status() != 200 {
		t.Errorf("status = %d", res.Status())
	}
	if l.launchCount() != 1 || !l.lastBrowser().isClosed() {
		t.Error("Get must launch once and close the browser")
	}
	if !slices.Contains(l.spec.Args, "--window-size=1024,768") {
		t.Errorf("launch args = %v", l.spec.Args)
	}
}
