package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/pagerender/api/middleware"
	"github.com/use-agent/pagerender/cache"
	"github.com/use-agent/pagerender/cleaner"
	"github.com/use-agent/pagerender/config"
	"github.com/use-agent/pagerender/models"
	"github.com/use-agent/pagerender/render"
	"github.com/use-agent/pagerender/simhash"
	"github.com/use-agent/pagerender/webhook"
)

// changeThreshold is the SimHash distance above which content counts as changed.
const changeThreshold = 3

// Renderer renders one URL per call. *render.Service implements it.
type Renderer interface {
	Render(ctx context.Context, url string, opts render.RequestOptions) (*render.Result, error)
	Stats() render.Stats
}

// Render returns a handler for POST /api/v1/render.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults, resolve the interceptor.
//  2. Cache lookup when max_age is set.
//  3. Renderer.Render → captured page            (records render_ms)
//  4. Cleaner.Clean   → requested content format (records cleaning_ms)
//  5. Compare with the previous cached render, store, notify webhook, respond.
func Render(rd Renderer, cl *cleaner.Cleaner, cc *cache.Cache, wh *webhook.Sender, cfg config.RenderConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()
		renderID := RenderID(c)

		// ── 1. Parse request ────────────────────────────────────────
		var req models.RenderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, renderID, "", models.NewRenderError(models.ErrCodeInvalidInput, err.Error(), err), models.TimingInfo{})
			return
		}
		req.Defaults()

		opts, err := requestOptions(&req, cfg)
		if err != nil {
			respondError(c, renderID, req.URL, err, models.TimingInfo{})
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		var cacheKey string
		if cc != nil {
			cacheKey = cache.Key(&req)
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				cached.CacheStatus = "hit"
				cached.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Render ───────────────────────────────────────────────
		timeout := time.Duration(req.Timeout) * time.Second
		if cfg.MaxTimeout > 0 && timeout > cfg.MaxTimeout {
			timeout = cfg.MaxTimeout
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		renderStart := time.Now()
		result, err := rd.Render(ctx, req.URL, opts)
		renderMs := time.Since(renderStart).Milliseconds()
		if err != nil {
			timing := models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds(), RenderMs: renderMs}
			resp := respondError(c, renderID, req.URL, err, timing)
			notify(wh, req.WebhookURL, webhook.EventRenderFailed, renderID, resp)
			return
		}

		// ── 4. Clean ────────────────────────────────────────────────
		cleanStart := time.Now()
		out, err := cl.Clean(result.Text(), result.FinalURL(), cleaner.Options{
			Format:      req.OutputFormat,
			ExtractMode: req.ExtractMode,
			Selector:    req.CSSSelector,
			IncludeTags: req.IncludeTags,
			ExcludeTags: req.ExcludeTags,
			Citations:   req.Citations,
			Links:       req.IncludeLinks,
		})
		cleaningMs := time.Since(cleanStart).Milliseconds()
		if err != nil {
			timing := models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds(), RenderMs: renderMs, CleaningMs: cleaningMs}
			resp := respondError(c, renderID, req.URL, err, timing)
			notify(wh, req.WebhookURL, webhook.EventRenderFailed, renderID, resp)
			return
		}

		resp := result.Model()
		resp.ID = renderID
		resp.Content = out.Content
		resp.Format = req.OutputFormat
		resp.Metadata = out.Metadata
		resp.Links = out.Links
		resp.Tokens = out.Tokens
		resp.Timing = models.TimingInfo{
			TotalMs:    time.Since(totalStart).Milliseconds(),
			RenderMs:   renderMs,
			CleaningMs: cleaningMs,
		}

		// ── 5. Change detection, cache store, webhook ───────────────
		if cc != nil {
			if prev, ok := cc.Peek(cacheKey); ok {
				resp.Changed = contentChanged(prev.Metadata.ContentFingerprint, resp.Metadata.ContentFingerprint)
			}
			if req.MaxAge > 0 && !resp.Synthetic {
				cc.Set(cacheKey, resp)
				resp.CacheStatus = "miss"
			}
		}
		notify(wh, req.WebhookURL, webhook.EventRenderCompleted, renderID, resp)

		c.JSON(http.StatusOK, resp)
	}
}

// requestOptions maps an API request onto render options, filling unset
// fields from the server's render defaults.
func requestOptions(req *models.RenderRequest, cfg config.RenderConfig) (render.RequestOptions, error) {
	opts := render.RequestOptions{
		UserAgent:  req.UserAgent,
		PageWidth:  req.PageWidth,
		PageHeight: req.PageHeight,
		Stealth:    req.Stealth,
		Delay:      time.Duration(req.DelayMs) * time.Millisecond,
		WaitFor:    req.WaitFor,
		Script:     req.Script,
	}
	if opts.UserAgent == "" {
		opts.UserAgent = cfg.UserAgent
	}
	if opts.PageWidth == 0 {
		opts.PageWidth = cfg.PageWidth
	}
	if opts.PageHeight == 0 {
		opts.PageHeight = cfg.PageHeight
	}

	opts.Interception = render.Bool(req.Intercept)
	if req.Intercept {
		h, err := render.InterceptorByName(req.Interceptor, cfg.BlockedResourceTypes, slog.Default())
		if err != nil {
			return opts, err
		}
		opts.Interceptor = h
		if req.AwaitInterceptors {
			opts.Dispatch = render.DispatchAwait
		}
	}
	return opts, nil
}

// contentChanged compares two formatted fingerprints. It returns nil when
// either cannot be parsed.
func contentChanged(prev, cur string) *bool {
	a, err := simhash.Parse(prev)
	if err != nil {
		return nil
	}
	b, err := simhash.Parse(cur)
	if err != nil {
		return nil
	}
	changed := !simhash.Similar(a, b, changeThreshold)
	return &changed
}

func notify(wh *webhook.Sender, url, eventType, renderID string, resp *models.RenderResponse) {
	if wh == nil || url == "" {
		return
	}
	wh.DeliverAsync(url, webhook.NewEvent(eventType, renderID, resp))
}

// respondError maps err to an HTTP status and writes a structured JSON error
// response, which it also returns.
func respondError(c *gin.Context, renderID, url string, err error, timing models.TimingInfo) *models.RenderResponse {
	var renderErr *models.RenderError
	if !errors.As(err, &renderErr) {
		renderErr = models.NewRenderError(models.ErrCodeInternal, err.Error(), err)
	}

	slog.Warn("render failed", "render_id", renderID, "url", url, "code", renderErr.Code, "error", err)

	resp := &models.RenderResponse{
		Success: false,
		ID:      renderID,
		URL:     url,
		Error:   renderErr.ToDetail(),
		Timing:  timing,
	}
	c.JSON(mapErrorToStatus(renderErr), resp)
	return resp
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.RenderError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput, models.ErrCodeInvalidHandler:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

// RenderID returns the render ID assigned by middleware.RequestID, or a new
// one when the middleware is not installed.
func RenderID(c *gin.Context) string {
	if id := c.GetString(middleware.RenderIDKey); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Set(middleware.RenderIDKey, id)
	return id
}
