package handler

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/urlhtml/classifier"
	"github.com/use-agent/urlhtml/config"
	"github.com/use-agent/urlhtml/engine"
	"github.com/use-agent/urlhtml/models"
	"github.com/use-agent/urlhtml/sink"
	"github.com/use-agent/urlhtml/webhook"
)

// FetchBatch returns the handler for POST /api/v1/fetch-batch. The batch is
// processed synchronously: the response carries the final per-URL results.
func FetchBatch(cfg *config.Config) gin.HandlerFunc {
	notifier := webhook.NewNotifier(cfg.Webhook)

	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
				Error:      "Validation Error",
				Detail:     err.Error(),
				StatusCode: http.StatusUnprocessableEntity,
			})
			return
		}

		if len(req.URLs) > cfg.Server.MaxURLsPerRequest {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:      "Invalid Input",
				Detail:     "too many URLs in batch",
				StatusCode: http.StatusBadRequest,
			})
			return
		}

		batchID := "batch-" + randomID()
		opts, saveOutputs := resolveOptions(cfg, req.Config)

		slog.Info("batch request received",
			"batch_id", batchID,
			"urls", len(req.URLs),
		)

		var out engine.OutputSink
		if saveOutputs {
			out = sink.New(cfg.Output.Dir)
		}

		orch := engine.New(opts, out)
		resp := orch.FetchBatch(c.Request.Context(), req.URLs)

		notifier.BatchCompleted(batchID, resp.Summary)

		c.JSON(http.StatusOK, resp)
	}
}

// resolveOptions merges per-request overrides onto the server defaults.
func resolveOptions(cfg *config.Config, overrides *models.ConfigOverrides) (engine.Options, bool) {
	opts := engine.Options{
		Static:   cfg.Static,
		Renderer: cfg.Renderer,
		Provider: cfg.Provider,
		Thresholds: classifier.Thresholds{
			MinContentLength:      cfg.Classifier.MinContentLength,
			MinTextLength:         cfg.Classifier.MinTextLength,
			MinMeaningfulElements: cfg.Classifier.MinMeaningfulElements,
			TextToMarkupRatio:     cfg.Classifier.TextToMarkupRatio,
			WhitelistDomains:      cfg.Classifier.WhitelistDomains,
		},
	}
	saveOutputs := cfg.Output.SaveOutputs

	if overrides == nil {
		return opts, saveOutputs
	}

	if v := overrides.StaticXHRConcurrency; v != nil {
		opts.Static.Concurrency = *v
	}
	if v := overrides.StaticXHRTimeout; v != nil {
		opts.Static.Timeout = time.Duration(*v) * time.Second
	}
	if overrides.CustomJSServiceEndpoints != nil {
		opts.Renderer.Endpoints = overrides.CustomJSServiceEndpoints
	}
	if v := overrides.CustomJSBatchSize; v != nil {
		opts.Renderer.BatchSize = *v
	}
	if v := overrides.CustomJSCooldownSeconds; v != nil {
		opts.Renderer.Cooldown = time.Duration(*v) * time.Second
	}
	if v := overrides.CustomJSTimeout; v != nil {
		opts.Renderer.Timeout = time.Duration(*v) * time.Second
	}
	if v := overrides.CustomJSMaxRetries; v != nil {
		opts.Renderer.MaxRetries = *v
	}
	if overrides.CustomJSSkipDomains != nil {
		opts.Renderer.SkipDomains = overrides.CustomJSSkipDomains
	}
	if v := overrides.DecodoEnabled; v != nil {
		opts.Provider.Enabled = *v
	}
	if v := overrides.DecodoTimeout; v != nil {
		opts.Provider.Timeout = time.Duration(*v) * time.Second
	}
	if v := overrides.MinContentLength; v != nil {
		opts.Thresholds.MinContentLength = *v
	}
	if v := overrides.MinTextLength; v != nil {
		opts.Thresholds.MinTextLength = *v
	}
	if v := overrides.SaveOutputs; v != nil {
		saveOutputs = *v
	}

	return opts, saveOutputs
}

// randomID generates a short random hex string for batch IDs.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
