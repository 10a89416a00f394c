package sink

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Writer saves successful HTML bodies to disk for verification. Writes are
// best-effort: a failed save never affects the batch result.
type Writer struct {
	dir string
}

// New creates a Writer rooted at dir. The directory is created lazily on the
// first save.
func New(dir string) *Writer {
	if dir == "" {
		dir = "outputs"
	}
	return &Writer{dir: dir}
}

// Save writes one HTML body to <dir>/<method>_<host>_<path>[_<query>]_<ts>.html.
func (w *Writer) Save(html, rawURL, method string) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		slog.Warn("output sink: create directory failed", "dir", w.dir, "error", err)
		return
	}

	path := filepath.Join(w.dir, w.filename(rawURL, method))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		slog.Warn("output sink: save failed", "path", path, "error", err)
		return
	}
	slog.Debug("output saved", "method", method, "path", path)
}

// filename derives a filesystem-safe name from the URL and method.
func (w *Writer) filename(rawURL, method string) string {
	parsed, err := url.Parse(rawURL)

	var host, path, query string
	if err == nil {
		host = strings.ReplaceAll(parsed.Hostname(), ".", "_")
		path = strings.Trim(strings.ReplaceAll(parsed.Path, "/", "_"), "_")
		query = strings.NewReplacer("&", "_", "=", "_").Replace(parsed.RawQuery)
	}
	if path == "" {
		path = "index"
	}

	base := host + "_" + path
	if query != "" {
		if len(query) > 50 {
			query = query[:50]
		}
		base += "_" + query
	}
	if len(base) > 100 {
		base = base[:100]
	}

	name := fmt.Sprintf("%s_%s_%d.html", method, base, time.Now().Unix())
	return sanitize(name)
}

// sanitize keeps letters, digits, underscores, dashes and dots.
func sanitize(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '_', r == '-', r == '.':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
