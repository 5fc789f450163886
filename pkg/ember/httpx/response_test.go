package httpx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yourusername/ember/pkg/ember/buffer"
)

func TestResolveAndBuildResponseOK(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>hi</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}

	full, status := Resolve(dir, "/index.html")
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %d", status)
	}

	out := buffer.New()
	if err := BuildResponse(out, full, true, status); err != nil {
		t.Fatal(err)
	}
	resp := string(out.Peek())
	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("bad status line: %q", resp)
	}
	if !strings.Contains(resp, "Connection: keep-alive\r\n") {
		t.Fatal("expected keep-alive header")
	}
	if !strings.Contains(resp, "Keep-Alive: max=6, timeout=120\r\n") {
		t.Fatal("expected Keep-Alive header")
	}
	if !strings.HasSuffix(resp, "<h1>hi</h1>") {
		t.Fatalf("expected body appended, got %q", resp)
	}
}

func TestResolveMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, status := Resolve(dir, "/nope.html")
	if status != StatusNotFound {
		t.Fatalf("expected StatusNotFound, got %d", status)
	}
}

func TestResolveForbiddenOnDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, status := Resolve(dir, "/sub")
	if status != StatusForbidden {
		t.Fatalf("expected StatusForbidden, got %d", status)
	}
}

func TestBuildResponseCloseHasNoKeepAliveHeader(t *testing.T) {
	out := buffer.New()
	if err := BuildResponse(out, "", false, StatusNotFound); err != nil {
		t.Fatal(err)
	}
	resp := string(out.Peek())
	if strings.Contains(resp, "keep-alive") {
		t.Fatal("did not expect keep-alive header on close")
	}
	if !strings.HasPrefix(resp, "HTTP/1.1 404 Not Found\r\n") {
		t.Fatalf("bad status line: %q", resp)
	}
}
