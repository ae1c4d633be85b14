package render

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func newPausedRequest(p *fakePage, id, url, resourceType string) *InterceptedRequest {
	return &InterceptedRequest{ID: id, URL: url, Method: "GET", ResourceType: resourceType, resolver: p}
}

func TestInterceptedRequest_ResolvesOnce(t *testing.T) {
	p := &fakePage{}
	ctx := context.Background()

	req := newPausedRequest(p, "1", "https://example.com/", "Document")
	if req.Resolved() {
		t.Fatal("new request should be unresolved")
	}
	if err := req.Continue(ctx); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if !req.Resolved() {
		t.Error("request should be resolved after Continue")
	}
	if err := req.Continue(ctx); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("second Continue = %v, want ErrAlreadyResolved", err)
	}
	if err := req.Abort(ctx, AbortAborted); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("Abort after Continue = %v, want ErrAlreadyResolved", err)
	}
	if got := p.continuedIDs(); len(got) != 1 {
		t.Errorf("continued %v, want exactly one", got)
	}
	if len(p.failedReasons()) != 0 {
		t.Errorf("failed = %v, want none", p.failedReasons())
	}
}

func TestInterceptedRequest_AbortDefaultReason(t *testing.T) {
	p := &fakePage{}
	req := newPausedRequest(p, "7", "https://example.com/a.png", "Image")
	if err := req.Abort(context.Background(), ""); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if got := p.failedReasons()["7"]; got != AbortFailed {
		t.Errorf("reason = %q, want %q", got, AbortFailed)
	}
}

func TestCheckInterceptor(t *testing.T) {
	var nilFunc InterceptorFunc
	if err := checkInterceptor(nilFunc); !errors.Is(err, ErrInvalidHandler) {
		t.Errorf("nil InterceptorFunc: err = %v, want ErrInvalidHandler", err)
	}
	if err := checkInterceptor(nil); err != nil {
		t.Errorf("nil interface should select the default handler, got %v", err)
	}
	if err := checkInterceptor(LogInterceptor(quietLogger)); err != nil {
		t.Errorf("LogInterceptor rejected: %v", err)
	}
	var nilPtr *ptrInterceptor
	if err := checkInterceptor(nilPtr); !errors.Is(err, ErrInvalidHandler) {
		t.Errorf("typed nil pointer: err = %v, want ErrInvalidHandler", err)
	}
	if err := checkInterceptor(&ptrInterceptor{}); err != nil {
		t.Errorf("non-nil pointer rejected: %v", err)
	}
}

type ptrInterceptor struct{ calls int }

func (p *ptrInterceptor) Intercept(ctx context.Context, req *InterceptedRequest) error {
	p.calls++
	return req.Continue(ctx)
}

func TestInterceptorByName(t *testing.T) {
	for _, name := range []string{"", "log", "block", "continue"} {
		h, err := InterceptorByName(name, []string{"Image"}, quietLogger)
		if err != nil {
			t.Errorf("InterceptorByName(%q): %v", name, err)
			continue
		}
		if h == nil {
			t.Errorf("InterceptorByName(%q) returned nil", name)
		}
	}

	_, err := InterceptorByName("sync", nil, quietLogger)
	if !errors.Is(err, ErrInvalidHandler) {
		t.Errorf("unknown name: err = %v, want ErrInvalidHandler", err)
	}
}

func TestLogInterceptor_Continues(t *testing.T) {
	p := &fakePage{}
	req := newPausedRequest(p, "1", "https://example.com/", "Document")
	if err := LogInterceptor(quietLogger).Intercept(context.Background(), req); err != nil {
		t.Fatalf("Intercept: %v", err)
	}
	if !req.Resolved() || len(p.continuedIDs()) != 1 {
		t.Error("LogInterceptor must continue the request")
	}
}

func TestBlockingInterceptor(t *testing.T) {
	p := &fakePage{}
	h := BlockingInterceptor([]string{"Image", "Font", "NotAType"}, true)
	ctx := context.Background()

	cases := []struct {
		id, url, resourceType string
		blocked               bool
	}{
		{"1", "https://example.com/", "Document", false},
		{"2", "https://example.com/logo.png", "Image", true},
		{"3", "https://example.com/font.woff2", "Font", true},
		{"4", "https://example.com/app.js", "Script", false},
		{"5", "https://pagead2.googlesyndication.com/ads.js", "Script", true},
		{"6", "https://example.com/x", "NotAType", false},
	}
	for _, tc := range cases {
		if err := h.Intercept(ctx, newPausedRequest(p, tc.id, tc.url, tc.resourceType)); err != nil {
			t.Fatalf("Intercept(%s): %v", tc.url, err)
		}
	}

	failed := p.failedReasons()
	for _, tc := range cases {
		reason, isBlocked := failed[tc.id]
		if isBlocked != tc.blocked {
			t.Errorf("%s (%s): blocked = %v, want %v", tc.url, tc.resourceType, isBlocked, tc.blocked)
		}
		if isBlocked && reason != AbortBlockedByClient {
			t.Errorf("%s: reason = %q, want %q", tc.url, reason, AbortBlockedByClient)
		}
	}
}

func TestIsAdDomain(t *testing.T) {
	cases := map[string]bool{
		"doubleclick.net":               true,
		"stats.g.doubleclick.net":       true,
		"PAGEAD2.GOOGLESYNDICATION.COM": true,
		"example.com":                   false,
		"notdoubleclick.net":            false,
		"":                              false,
	}
	for host, want := range cases {
		if got := isAdDomain(host); got != want {
			t.Errorf("isAdDomain(%q) = %v, want %v", host, got, want)
		}
	}
}

func TestDispatcher_AwaitContinuesUnresolved(t *testing.T) {
	p := &fakePage{}
	var calls atomic.Int32
	h := InterceptorFunc(func(ctx context.Context, req *InterceptedRequest) error {
		calls.Add(1)
		return errBoom
	})

	d := newDispatcher(context.Background(), h, DispatchAwait, quietLogger)
	for _, id := range []string{"a", "b", "c"} {
		d.dispatch(newPausedRequest(p, id, "https://example.com/"+id, "Script"))
	}
	if err := d.wait(time.Second); !errors.Is(err, errBoom) {
		t.Errorf("wait = %v, want the handler error", err)
	}
	if calls.Load() != 3 {
		t.Errorf("handler called %d times, want 3", calls.Load())
	}
	if got := p.continuedIDs(); len(got) != 3 {
		t.Errorf("continued %v, want all three", got)
	}
	if n := d.pending.Load(); n != 0 {
		t.Errorf("pending = %d after wait", n)
	}
}

func TestDispatcher_AwaitTimeout(t *testing.T) {
	release := make(chan struct{})
	h := InterceptorFunc(func(ctx context.Context, req *InterceptedRequest) error {
		<-release
		return nil
	})

	d := newDispatcher(context.Background(), h, DispatchAwait, quietLogger)
	d.dispatch(newPausedRequest(&fakePage{}, "1", "https://example.com/", "Document"))

	if err := d.wait(20 * time.Millisecond); !errors.Is(err, errAwaitTimeout) {
		t.Errorf("wait = %v, want errAwaitTimeout", err)
	}
	close(release)
	if err := d.wait(time.Second); err != nil {
		t.Errorf("wait after release = %v", err)
	}
}

func TestDispatcher_RequestsDuringWait(t *testing.T) {
	p := &fakePage{}
	var calls atomic.Int32
	h := InterceptorFunc(func(ctx context.Context, req *InterceptedRequest) error {
		calls.Add(1)
		time.Sleep(time.Millisecond)
		return req.Continue(ctx)
	})
	d := newDispatcher(context.Background(), h, DispatchAwait, quietLogger)
	d.dispatch(newPausedRequest(p, "first", "https://example.com/", "Document"))

	stop := make(chan struct{})
	sent := make(chan int)
	go func() {
		n := 0
		for {
			select {
			case <-stop:
				sent <- n
				return
			default:
				n++
				d.dispatch(newPausedRequest(p, fmt.Sprint(n), "https://example.com/late", "Script"))
			}
		}
	}()

	if err := d.wait(time.Second); err != nil {
		t.Errorf("wait = %v", err)
	}
	close(stop)
	n := <-sent

	// Late requests are continued off the handler; give those goroutines a moment.
	deadline := time.Now().Add(time.Second)
	for len(p.continuedIDs()) < n+1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := len(p.continuedIDs()); got != n+1 {
		t.Errorf("continued %d requests, want %d", got, n+1)
	}
	if int(calls.Load()) > n+1 {
		t.Errorf("handler called %d times for %d requests", calls.Load(), n+1)
	}
}

func TestDispatcher_ClosedSkipsHandler(t *testing.T) {
	p := &fakePage{}
	var calls atomic.Int32
	h := InterceptorFunc(func(ctx context.Context, req *InterceptedRequest) error {
		calls.Add(1)
		return nil
	})
	d := newDispatcher(context.Background(), h, DispatchAwait, quietLogger)
	if err := d.wait(time.Second); err != nil {
		t.Fatalf("wait = %v", err)
	}

	d.dispatch(newPausedRequest(p, "late", "https://example.com/", "Image"))

	deadline := time.Now().Add(time.Second)
	for len(p.continuedIDs()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := p.continuedIDs(); len(got) != 1 || got[0] != "late" {
		t.Errorf("continued %v, want [late]", got)
	}
	if calls.Load() != 0 {
		t.Errorf("handler called %d times after close", calls.Load())
	}
	if d.pending.Load() != 0 {
		t.Errorf("pending = %d, want 0", d.pending.Load())
	}
}

func TestDispatcher_DetachedDoesNotWait(t *testing.T) {
	release := make(chan struct{})
	done := make(chan struct{})
	h := InterceptorFunc(func(ctx context.Context, req *InterceptedRequest) error {
		<-release
		close(done)
		return nil
	})

	d := newDispatcher(context.Background(), h, DispatchDetached, quietLogger)
	d.dispatch(newPausedRequest(&fakePage{}, "1", "https://example.com/", "Document"))

	if err := d.wait(time.Second); err != nil {
		t.Errorf("detached wait = %v, want nil", err)
	}
	if d.pending.Load() != 1 {
		t.Errorf("pending = %d, want 1 while the handler is blocked", d.pending.Load())
	}
	close(release)
	<-done
}

func TestDispatch_String(t *testing.T) {
	if DispatchDetached.String() != "detached" || DispatchAwait.String() != "await" {
		t.Errorf("got %q / %q", DispatchDetached, DispatchAwait)
	}
}
