package forms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dentalrpa/journalize/process"
)

func TestDownload(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("API-Key")
		w.Write([]byte("%PDF-1.4 receipt"))
	}))
	defer srv.Close()

	c := NewClient("form-key")
	rctx := process.NewContext()
	rctx.Set(map[string]interface{}{process.KeyURL: srv.URL + "/doc/1"})

	dir := filepath.Join(t.TempDir(), "documents")
	// stale copy from a previous run must be replaced
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "receipt.pdf"), []byte("stale"), 0o644)

	path, err := c.Download(context.Background(), rctx, dir, "receipt.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if gotKey != "form-key" {
		t.Errorf("api key header: %q", gotKey)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "%PDF-1.4 receipt" {
		t.Errorf("got %q", raw)
	}
	if rctx.GetString(process.KeyDocumentPath) != path {
		t.Error("document path not recorded in run context")
	}
}

func TestDownloadErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient("bad-key")
	rctx := process.NewContext()

	// missing source URL is a precondition failure
	if _, err := c.Download(context.Background(), rctx, t.TempDir(), "receipt.pdf"); err == nil {
		t.Fatal("expected error for missing url")
	}

	rctx.Set(map[string]interface{}{process.KeyURL: srv.URL + "/doc/1"})
	if _, err := c.Download(context.Background(), rctx, t.TempDir(), "receipt.pdf"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if v := rctx.Get(process.KeyDocumentPath); v != nil {
		t.Error("document path recorded despite failure")
	}
}
