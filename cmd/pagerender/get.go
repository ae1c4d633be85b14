package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/pagerender/cleaner"
	"github.com/use-agent/pagerender/config"
	"github.com/use-agent/pagerender/models"
	"github.com/use-agent/pagerender/render"
)

// getFlags holds the flag values of "pagerender get".
type getFlags struct {
	// launch
	headless     bool
	bin          string
	userDataDir  string
	autoClose    bool
	windowWidth  int
	windowHeight int
	args         []string
	maximize     bool

	// request
	userAgent         string
	pageWidth         int
	pageHeight        int
	stealth           bool
	intercept         bool
	interceptor       string
	awaitInterceptors bool
	delay             time.Duration
	waitFor           string
	script            string
	timeout           time.Duration

	// output
	format   string
	selector string
	extract  string
	links    bool
}

func newGetCmd(cfg *config.Config) *cobra.Command {
	cmd, _ := getCommand(cfg)
	return cmd
}

// getCommand builds the "get" command along with the values its flags bind to.
func getCommand(cfg *config.Config) (*cobra.Command, *getFlags) {
	f := &getFlags{}

	cmd := &cobra.Command{
		Use:   "get URL",
		Short: "Render one URL and print the result as JSON",
		Example: `  pagerender get https://example.com
  pagerender get https://example.com --format markdown --extract readability
  pagerender get https://example.com --script "() => document.title" --wait-for "#app"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			launch, opts, err := f.options(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if f.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, f.timeout)
				defer cancel()
			}

			resp, err := runGet(ctx, args[0], launch, opts, f, cfg.Render)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	fl := cmd.Flags()
	b := cfg.Browser
	r := cfg.Render

	fl.BoolVar(&f.headless, "headless", b.Headless, "run the browser without a window")
	fl.StringVar(&f.bin, "bin", b.BrowserBin, "path to the Chromium executable (default: download or system browser)")
	fl.StringVar(&f.userDataDir, "user-data-dir", b.UserDataDir, "persistent profile directory (default: temporary)")
	fl.BoolVar(&f.autoClose, "auto-close", b.AutoClose, "kill the browser when pagerender exits (always on when headless)")
	fl.IntVar(&f.windowWidth, "window-width", b.WindowWidth, "browser window width; requires --window-height")
	fl.IntVar(&f.windowHeight, "window-height", b.WindowHeight, "browser window height; requires --window-width")
	fl.StringArrayVar(&f.args, "arg", nil, "extra Chromium argument, repeatable (e.g. --arg=--lang=en-US)")
	fl.BoolVar(&f.maximize, "maximize", b.Maximize, "start maximized unless a window size is given")

	fl.StringVar(&f.userAgent, "user-agent", r.UserAgent, "user agent override")
	fl.IntVar(&f.pageWidth, "page-width", r.PageWidth, "viewport width")
	fl.IntVar(&f.pageHeight, "page-height", r.PageHeight, "viewport height")
	fl.BoolVar(&f.stealth, "stealth", true, "inject anti-detection scripts before navigation")
	fl.BoolVar(&f.intercept, "intercept", false, "intercept every outgoing request")
	fl.StringVar(&f.interceptor, "interceptor", "log", "interception handler: log, block, continue")
	fl.BoolVar(&f.awaitInterceptors, "await-interceptors", false, "wait for interception handlers before closing the page")
	fl.DurationVar(&f.delay, "delay", 0, "sleep after navigation")
	fl.StringVar(&f.waitFor, "wait-for", "", "CSS selector or XPath that must match before capture")
	fl.StringVar(&f.script, "script", "", "JavaScript evaluated before capture; result in script_result")
	fl.DurationVar(&f.timeout, "timeout", r.MaxTimeout, "overall deadline, 0 for none")

	fl.StringVar(&f.format, "format", cleaner.FormatHTML, "content format: html, markdown, text")
	fl.StringVar(&f.selector, "selector", "", "keep only elements matching this CSS selector")
	fl.StringVar(&f.extract, "extract", cleaner.ExtractRaw, "content extraction: raw, readability, pruning, auto")
	fl.BoolVar(&f.links, "links", false, "include the page's links")

	return cmd, f
}

// options turns the flags into launch and request settings.
func (f *getFlags) options(cfg *config.Config) (render.LaunchConfig, render.RequestOptions, error) {
	if (f.windowWidth > 0) != (f.windowHeight > 0) {
		return render.LaunchConfig{}, render.RequestOptions{},
			models.NewRenderError(models.ErrCodeInvalidInput, "--window-width and --window-height must be given together", nil)
	}
	switch f.format {
	case cleaner.FormatHTML, cleaner.FormatMarkdown, cleaner.FormatText:
	default:
		return render.LaunchConfig{}, render.RequestOptions{},
			models.NewRenderError(models.ErrCodeInvalidInput, fmt.Sprintf("unknown --format %q", f.format), nil)
	}

	launch := render.LaunchConfig{
		Headless:       render.Bool(f.headless),
		ExecutablePath: f.bin,
		UserDataDir:    f.userDataDir,
		AutoClose:      render.Bool(f.autoClose),
		WindowWidth:    f.windowWidth,
		WindowHeight:   f.windowHeight,
		Args:           append(cfg.Browser.LaunchArgs(), f.args...),
		EnableMaximize: render.Bool(f.maximize),
	}

	opts := render.RequestOptions{
		UserAgent:    f.userAgent,
		PageWidth:    f.pageWidth,
		PageHeight:   f.pageHeight,
		Stealth:      render.Bool(f.stealth),
		Interception: render.Bool(f.intercept),
		Delay:        f.delay,
		WaitFor:      f.waitFor,
		Script:       f.script,
	}
	if f.intercept {
		h, err := render.InterceptorByName(f.interceptor, cfg.Render.BlockedResourceTypes, slog.Default())
		if err != nil {
			return render.LaunchConfig{}, render.RequestOptions{}, err
		}
		opts.Interceptor = h
		if f.awaitInterceptors {
			opts.Dispatch = render.DispatchAwait
		}
	}
	return launch, opts, nil
}

// runGet renders url once and converts the result for output.
func runGet(ctx context.Context, url string, launch render.LaunchConfig, opts render.RequestOptions, f *getFlags, rc config.RenderConfig, sessionOpts ...render.SessionOption) (*models.RenderResponse, error) {
	start := time.Now()
	sessionOpts = append([]render.SessionOption{
		render.WithNavigationTimeout(rc.NavigationTimeout),
		render.WithWaitTimeout(rc.WaitTimeout),
		render.WithLogger(slog.Default()),
	}, sessionOpts...)

	res, err := render.Get(ctx, url, launch, opts, sessionOpts...)
	if err != nil {
		return nil, err
	}
	renderMs := time.Since(start).Milliseconds()

	cleanStart := time.Now()
	out, err := cleaner.New().Clean(res.Text(), res.FinalURL(), cleaner.Options{
		Format:      f.format,
		ExtractMode: f.extract,
		Selector:    f.selector,
		Links:       f.links,
	})
	if err != nil {
		return nil, err
	}

	resp := res.Model()
	resp.Content = out.Content
	resp.Format = f.format
	resp.Metadata = out.Metadata
	resp.Links = out.Links
	resp.Tokens = out.Tokens
	resp.Timing = models.TimingInfo{
		TotalMs:    time.Since(start).Milliseconds(),
		RenderMs:   renderMs,
		CleaningMs: time.Since(cleanStart).Milliseconds(),
	}
	return resp, nil
}
