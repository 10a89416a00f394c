package sink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSave_WritesFile(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)

	w.Save("<html>content</html>", "https://shop.example/p/123?color=red", "static")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 file, got %d", len(entries))
	}

	name := entries[0].Name()
	if !strings.HasPrefix(name, "static_shop_example_p_123") {
		t.Errorf("unexpected filename: %s", name)
	}
	if !strings.HasSuffix(name, ".html") {
		t.Errorf("missing .html suffix: %s", name)
	}

	body, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(body) != "<html>content</html>" {
		t.Errorf("body mismatch: %q", body)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "outputs")
	w := New(dir)

	w.Save("<html>x</html>", "https://a.example/", "custom_js")

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("directory not created or empty: %v", err)
	}
}

func TestFilename_Sanitized(t *testing.T) {
	w := New(t.TempDir())

	name := w.filename("https://a.example/path with spaces/?q=a&b=c%20d", "decodo")
	for _, r := range name {
		valid := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
		if !valid {
			t.Fatalf("invalid character %q in filename %s", r, name)
		}
	}
	if !strings.HasPrefix(name, "decodo_") {
		t.Errorf("method prefix missing: %s", name)
	}
}

func TestFilename_LongURLCapped(t *testing.T) {
	w := New(t.TempDir())

	long := "https://a.example/" + strings.Repeat("verylongsegment/", 30) + "?" + strings.Repeat("k=v&", 40)
	name := w.filename(long, "static")

	// method + base (≤100) + timestamp + extension stays well under 140.
	if len(name) > 140 {
		t.Errorf("filename too long: %d chars", len(name))
	}
}
