package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/urlhtml/classifier"
	"github.com/use-agent/urlhtml/config"
	"github.com/use-agent/urlhtml/fetcher"
	"github.com/use-agent/urlhtml/models"
	"github.com/use-agent/urlhtml/provider"
	"github.com/use-agent/urlhtml/renderer"
)

// Options is the resolved, immutable configuration for one batch.
type Options struct {
	Static     config.StaticConfig
	Renderer   config.RendererConfig
	Provider   config.ProviderConfig
	Thresholds classifier.Thresholds
}

// OutputSink persists successful HTML bodies. Nil disables saving.
type OutputSink interface {
	Save(html, url, method string)
}

// Orchestrator drives a batch through the three fetch tiers:
//
//	urls → static fetcher → (success | needs-js)
//	     → skip-domain filter → renderer pool retry loop
//	     → residual → provider fallback → final report
//
// Phases are strictly sequential at the batch level; per-URL work inside a
// phase is concurrent.
type Orchestrator struct {
	opts        Options
	cls         *classifier.Classifier
	sink        OutputSink
	skipDomains []string
}

// New creates an Orchestrator.
func New(opts Options, sink OutputSink) *Orchestrator {
	return &Orchestrator{
		opts:        opts,
		cls:         classifier.New(opts.Thresholds),
		sink:        sink,
		skipDomains: NormalizeDomainList(opts.Renderer.SkipDomains),
	}
}

// FetchBatch processes one batch and returns the final report. No per-URL
// failure is fatal: every input URL yields exactly one result record, in
// input order.
func (o *Orchestrator) FetchBatch(ctx context.Context, urls []string) models.BatchResponse {
	start := time.Now()
	agg := NewAggregator(urls)

	slog.Info("batch processing started", "urls", len(urls))

	// ── Phase 1: static + XHR ───────────────────────────────────────
	static := fetcher.NewStaticFetcher(o.opts.Static.Concurrency, o.opts.Static.Timeout, o.cls)
	phase1 := static.ProcessBatch(ctx, urls)

	var jsURLs []string
	staticMethods := make(map[string]string)
	for _, r := range phase1 {
		if r.NeedsJS {
			jsURLs = append(jsURLs, r.URL)
			staticMethods[r.URL] = r.Method
			continue
		}
		agg.Add(r.URL, r.HTML, r.Method, models.StatusSuccess, "")
		o.save(r.HTML, r.URL, r.Method)
	}

	directProvider, rendererInput := partitionSkipDomains(jsURLs, o.skipDomains)
	if len(directProvider) > 0 {
		slog.Info("skip-domain URLs routed straight to provider", "count", len(directProvider))
	}

	if len(jsURLs) == 0 {
		return o.finish(agg, start)
	}

	// ── Phase 2: renderer pool with retry loop ──────────────────────
	residual := directProvider
	if len(rendererInput) > 0 {
		leftover := o.renderLoop(ctx, rendererInput, agg)
		residual = append(leftover, directProvider...)
	}

	if len(residual) == 0 {
		return o.finish(agg, start)
	}

	// ── Phase 3: provider fallback ──────────────────────────────────
	if !o.opts.Provider.Enabled {
		// Residuals are attributed to the last tier that ran for them;
		// with the fallback off, the provider never did.
		slog.Warn("provider fallback disabled, marking residual URLs failed", "count", len(residual))
		for _, u := range residual {
			method := models.MethodCustomJS
			if shouldSkipRenderer(u, o.skipDomains) {
				method = staticMethods[u]
			}
			agg.Add(u, "", method, models.StatusFailed, "Decodo fallback disabled")
		}
		return o.finish(agg, start)
	}

	client, err := provider.NewClient(o.opts.Provider)
	if err != nil {
		slog.Error("provider client unavailable", "error", err)
		for _, u := range residual {
			agg.Add(u, "", models.MethodDecodo, models.StatusFailed, "provider credentials not configured")
		}
		return o.finish(agg, start)
	}

	for _, r := range client.ProcessURLs(ctx, residual) {
		agg.Add(r.URL, r.HTML, models.MethodDecodo, r.Status, r.Error)
		if r.Status == "success" {
			o.save(r.HTML, r.URL, models.MethodDecodo)
		}
	}

	return o.finish(agg, start)
}

// renderLoop drives up to MaxRetries rendering rounds. URLs whose rendered
// body fails the renderer-tier skeleton verdict carry over to the next
// round; whatever remains after the last round is the residual set.
func (o *Orchestrator) renderLoop(ctx context.Context, urls []string, agg *Aggregator) []string {
	pool := renderer.NewPool(
		o.opts.Renderer.Endpoints,
		o.opts.Renderer.BatchSize,
		o.opts.Renderer.Cooldown,
		o.opts.Renderer.Timeout,
	)

	maxRetries := o.opts.Renderer.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 10
	}

	pending := urls

	for attempt := 1; attempt <= maxRetries && len(pending) > 0; attempt++ {
		slog.Info("render round starting",
			"attempt", attempt,
			"maxRetries", maxRetries,
			"urls", len(pending),
			"endpoints", pool.Size(),
		)

		var carry []string
		for _, r := range pool.ProcessURLs(ctx, pending) {
			if r.Status != "success" || r.HTML == "" {
				carry = append(carry, r.URL)
				continue
			}

			if skeleton, reason := o.cls.IsRendererSkeleton(r.HTML, r.URL); skeleton {
				slog.Info("rendered result detected as skeleton",
					"url", r.URL,
					"reason", reason,
				)
				carry = append(carry, r.URL)
				continue
			}

			agg.Add(r.URL, r.HTML, models.MethodCustomJS, models.StatusSuccess, "")
			o.save(r.HTML, r.URL, models.MethodCustomJS)
		}

		pending = carry
	}

	if len(pending) > 0 {
		slog.Info("render loop exhausted", "residual", len(pending))
	}
	return pending
}

func (o *Orchestrator) finish(agg *Aggregator, start time.Time) models.BatchResponse {
	results, summary := agg.Finalize(time.Since(start).Seconds())

	slog.Info("batch processing completed",
		"total", summary.Total,
		"success", summary.Success,
		"failed", summary.Failed,
		"byMethod", summary.ByMethod,
		"totalTime", summary.TotalTime,
	)

	return models.BatchResponse{
		Results: results,
		Summary: summary,
		Success: summary.Failed == 0,
	}
}

func (o *Orchestrator) save(html, url, method string) {
	if o.sink != nil && html != "" {
		o.sink.Save(html, url, method)
	}
}
