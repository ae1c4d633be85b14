package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/pagerender/models"
	"golang.org/x/sync/errgroup"
)

// Abort reasons accepted by InterceptedRequest.Abort. They are CDP
// Network.ErrorReason values.
const (
	AbortFailed          = "Failed"
	AbortAborted         = "Aborted"
	AbortBlockedByClient = "BlockedByClient"
	AbortAccessDenied    = "AccessDenied"
)

var (
	// ErrInvalidHandler is returned before interception is armed when the
	// supplied handler cannot be called.
	ErrInvalidHandler = models.NewRenderError(models.ErrCodeInvalidHandler,
		"interception handler must be a non-nil Interceptor", nil)

	// ErrAlreadyResolved is returned when a request is continued or aborted twice.
	ErrAlreadyResolved = errors.New("render: intercepted request already resolved")

	errAwaitTimeout = errors.New("render: timed out waiting for interception handlers")
)

// requestResolver lets a paused request be released by the driver that paused it.
type requestResolver interface {
	continueRequest(ctx context.Context, id string) error
	failRequest(ctx context.Context, id, reason string) error
}

// InterceptedRequest is an outgoing page request paused until the handler
// continues or aborts it.
type InterceptedRequest struct {
	ID           string
	URL          string
	Method       string
	ResourceType string
	Headers      map[string]string

	resolver requestResolver
	resolved atomic.Bool
}

// Continue releases the request unmodified.
func (r *InterceptedRequest) Continue(ctx context.Context) error {
	if !r.resolved.CompareAndSwap(false, true) {
		return ErrAlreadyResolved
	}
	return r.resolver.continueRequest(ctx, r.ID)
}

// Abort fails the request with one of the Abort* reasons.
func (r *InterceptedRequest) Abort(ctx context.Context, reason string) error {
	if !r.resolved.CompareAndSwap(false, true) {
		return ErrAlreadyResolved
	}
	if reason == "" {
		reason = AbortFailed
	}
	return r.resolver.failRequest(ctx, r.ID, reason)
}

// Resolved reports whether Continue or Abort has been called.
func (r *InterceptedRequest) Resolved() bool {
	return r.resolved.Load()
}

// Interceptor decides the fate of intercepted requests. Intercept should call
// Continue or Abort before returning; requests left unresolved are continued.
type Interceptor interface {
	Intercept(ctx context.Context, req *InterceptedRequest) error
}

// InterceptorFunc adapts a function to the Interceptor interface.
type InterceptorFunc func(ctx context.Context, req *InterceptedRequest) error

// Intercept calls f(ctx, req).
func (f InterceptorFunc) Intercept(ctx context.Context, req *InterceptedRequest) error {
	return f(ctx, req)
}

// checkInterceptor rejects handler values that would panic when called,
// such as a nil func or a typed nil pointer. A nil interface means
// "no handler" and is valid.
func checkInterceptor(h Interceptor) error {
	if h == nil {
		return nil
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			return ErrInvalidHandler
		}
	}
	return nil
}

// LogInterceptor logs each request's headers and continues it unmodified.
// It is the handler used when interception is enabled without one.
func LogInterceptor(logger *slog.Logger) Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return InterceptorFunc(func(ctx context.Context, req *InterceptedRequest) error {
		logger.Info("intercepted request",
			"url", req.URL,
			"method", req.Method,
			"headers", req.Headers,
		)
		return req.Continue(ctx)
	})
}

// InterceptorByName resolves the handler names accepted by the CLI and HTTP API:
//
//	"" or "log"  LogInterceptor
//	"block"      BlockingInterceptor(blockedTypes, true)
//	"continue"   continue everything silently
func InterceptorByName(name string, blockedTypes []string, logger *slog.Logger) (Interceptor, error) {
	switch name {
	case "", "log":
		return LogInterceptor(logger), nil
	case "block":
		return BlockingInterceptor(blockedTypes, true), nil
	case "continue":
		return InterceptorFunc(func(ctx context.Context, req *InterceptedRequest) error {
			return req.Continue(ctx)
		}), nil
	default:
		return nil, models.NewRenderError(models.ErrCodeInvalidHandler,
			fmt.Sprintf("unknown interceptor %q", name), ErrInvalidHandler)
	}
}

// Dispatch controls whether interception handlers are awaited before teardown.
type Dispatch int

const (
	// DispatchDetached runs each handler on its own goroutine and never waits
	// for it. Side effects of a handler still running at teardown may be lost.
	DispatchDetached Dispatch = iota

	// DispatchAwait runs handlers concurrently but waits for all of them
	// (up to awaitHandlersTimeout) before the page is closed.
	DispatchAwait
)

func (d Dispatch) String() string {
	if d == DispatchAwait {
		return "await"
	}
	return "detached"
}

// awaitHandlersTimeout bounds how long teardown waits for awaited handlers.
const awaitHandlersTimeout = 5 * time.Second

// dispatcher fans intercepted requests out to an Interceptor.
type dispatcher struct {
	ctx     context.Context
	handler Interceptor
	mode    Dispatch
	group   errgroup.Group
	pending atomic.Int32
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

func newDispatcher(ctx context.Context, h Interceptor, mode Dispatch, logger *slog.Logger) *dispatcher {
	return &dispatcher{ctx: ctx, handler: h, mode: mode, logger: logger}
}

// dispatch is called by the page event loop once per paused request.
// Requests arriving after close are continued without the handler.
func (d *dispatcher) dispatch(req *InterceptedRequest) {
	run := func() error {
		defer d.pending.Add(-1)
		err := d.handler.Intercept(d.ctx, req)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("interception handler failed", "url", req.URL, "error", err)
		}
		d.continueUnresolved(req)
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		go d.continueUnresolved(req)
		return
	}
	d.pending.Add(1)
	if d.mode == DispatchAwait {
		d.group.Go(run)
		return
	}
	go func() { _ = run() }()
}

func (d *dispatcher) continueUnresolved(req *InterceptedRequest) {
	if req.Resolved() {
		return
	}
	if err := req.Continue(d.ctx); err != nil {
		d.logger.Debug("failed to continue unresolved request", "url", req.URL, "error", err)
	}
}

// close stops handing requests to the handler. No handler starts after it
// returns.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// wait closes the dispatcher and blocks until awaited handlers finish.
// Detached handlers are not waited for.
func (d *dispatcher) wait(timeout time.Duration) error {
	d.close()
	if d.mode != DispatchAwait {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- d.group.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errAwaitTimeout
	}
}
