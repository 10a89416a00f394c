package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/urlhtml/render"
)

// renderd is the rendering-fleet worker: one instance per endpoint hostname
// configured in CUSTOM_JS_SERVICES. It accepts POST /render with
// {"urls": [...]} and answers with {"results": [{url, html, status, error}]}.

type renderRequest struct {
	URLs []string `json:"urls" binding:"required,min=1,max=100"`
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := render.Config{
		Headless:    envBoolOr("RENDERD_HEADLESS", true),
		MaxPages:    envIntOr("RENDERD_MAX_PAGES", 5),
		NoSandbox:   envBoolOr("RENDERD_NO_SANDBOX", false),
		BrowserBin:  os.Getenv("RENDERD_BROWSER_BIN"),
		PageTimeout: time.Duration(envIntOr("RENDERD_PAGE_TIMEOUT", 60)) * time.Second,
		BlockedResourceTypes: envSliceOr("RENDERD_BLOCKED_RESOURCES", []string{
			"Image", "Stylesheet", "Font", "Media",
		}),
	}

	svc, err := render.NewService(cfg)
	if err != nil {
		slog.Error("failed to initialise render service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	gin.SetMode(envOr("RENDERD_MODE", "release"))
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	r.POST("/render", func(c *gin.Context) {
		var req renderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		start := time.Now()
		results := svc.RenderBatch(c.Request.Context(), req.URLs)
		slog.Info("render batch served",
			"urls", len(req.URLs),
			"elapsed", time.Since(start).Seconds(),
		)

		c.JSON(http.StatusOK, gin.H{"results": results})
	})

	addr := fmt.Sprintf("%s:%d", envOr("RENDERD_HOST", "0.0.0.0"), envIntOr("RENDERD_PORT", 8080))
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		slog.Info("renderd listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("renderd stopping")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
