package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// Config controls the rendering service's browser.
type Config struct {
	// Headless controls whether the browser runs headless.
	Headless bool

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// PageTimeout is the per-URL navigation + render deadline.
	PageTimeout time.Duration

	// BlockedResourceTypes lists resource types to block during navigation.
	BlockedResourceTypes []string
}

// Result is one per-URL rendering outcome, shaped for the /render response.
type Result struct {
	URL    string `json:"url"`
	HTML   string `json:"html,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Service renders URL batches with a shared headless browser and a reusable
// page pool. It is safe for concurrent use.
type Service struct {
	browser  *rod.Browser
	pagePool rod.Pool[rod.Page]
	cfg      Config
}

// NewService launches a headless browser and initialises the page pool.
func NewService(cfg Config) (*Service, error) {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 60 * time.Second
	}

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}

	// Mask the obvious automation signals before any page exists.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("render: launch browser: %w", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("render: connect browser: %w", err)
	}

	return &Service{
		browser:  browser,
		pagePool: rod.NewPagePool(cfg.MaxPages),
		cfg:      cfg,
	}, nil
}

// Close drains the page pool and kills the browser process.
func (s *Service) Close() {
	s.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	s.browser.MustClose()
	slog.Info("render service shut down")
}

// RenderBatch renders the URLs of one request sequentially and returns one
// Result per URL. A failed URL never aborts the rest of the batch.
func (s *Service) RenderBatch(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))
	for i, target := range urls {
		html, err := s.renderOne(ctx, target)
		if err != nil {
			slog.Warn("render failed", "url", target, "error", err)
			results[i] = Result{URL: target, Status: "failed", Error: err.Error()}
			continue
		}
		results[i] = Result{URL: target, HTML: html, Status: "success"}
	}
	return results
}

// renderOne navigates one URL in a pooled tab and extracts the DOM after it
// settles. Stealth injection and resource blocking must be installed before
// navigation to take effect.
func (s *Service) renderOne(ctx context.Context, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PageTimeout)
	defer cancel()

	page, err := s.pagePool.Get(func() (*rod.Page, error) {
		return s.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		return "", fmt.Errorf("acquire page: %w", err)
	}

	// about:blank via the original page reference so cleanup succeeds even
	// after the request context expires.
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		s.pagePool.Put(page)
	}()

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
	}

	if u, parseErr := url.Parse(target); parseErr == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{
				"Referer": gson.New("https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())),
			},
		}.Call(page)
	}

	router := setupHijack(page, s.cfg.BlockedResourceTypes)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	if err := p.Navigate(target); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}

	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"url", target,
			"error", err,
		)
	}

	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("extract HTML: %w", err)
	}
	return html, nil
}

// configToProto maps human-readable config strings to Rod protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// setupHijack installs a request interceptor that blocks the configured
// resource types. Returns the running HijackRouter so the caller can defer
// router.Stop(), or nil when nothing is blocked.
func setupHijack(page *rod.Page, blockedTypes []string) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 {
		return nil
	}

	router := page.HijackRequests()

	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, shouldBlock := blocked[ctx.Request.Type()]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks, so it must live in its own goroutine.
	go router.Run()

	return router
}
