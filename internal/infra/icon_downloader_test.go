package infra

import (
	"bytes"
	"context"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
)

func pngBytes(t *testing.T, size int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(size, size, color.NRGBA{R: 200, G: 50, B: 50, A: 255})
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestIconDownloader_Metadata(t *testing.T) {
	img := pngBytes(t, 64)
	var hits atomic.Int32

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/meta.json":
			w.Write([]byte(`{"name":"Alpha","symbol":"ALP","image":"` + server.URL + `/img.png"}`))
		case "/img.png":
			w.Write(img)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	d, err := NewIconDownloader(t.TempDir(), 24)
	if err != nil {
		t.Fatalf("NewIconDownloader failed: %v", err)
	}

	path, err := d.DownloadIcon(context.Background(), "Mint123", server.URL+"/meta.json")
	if err != nil {
		t.Fatalf("DownloadIcon failed: %v", err)
	}
	if filepath.Base(path) != "Mint123.png" {
		t.Errorf("Unexpected icon path %s", path)
	}

	saved, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("Saved icon unreadable: %v", err)
	}
	if b := saved.Bounds(); b.Dx() != 24 || b.Dy() != 24 {
		t.Errorf("Expected 24x24, got %dx%d", b.Dx(), b.Dy())
	}

	// cache hit
	before := hits.Load()
	if _, err := d.DownloadIcon(context.Background(), "Mint123", server.URL+"/meta.json"); err != nil {
		t.Fatalf("Cached DownloadIcon failed: %v", err)
	}
	if hits.Load() != before {
		t.Error("Cached icon should not be fetched again")
	}
}

func TestIconDownloader_DirectImage(t *testing.T) {
	img := pngBytes(t, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(img)
	}))
	defer server.Close()

	d, _ := NewIconDownloader(t.TempDir(), 16)
	path, err := d.DownloadIcon(context.Background(), "Direct", server.URL+"/x.png")
	if err != nil {
		t.Fatalf("DownloadIcon failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Icon not written: %v", err)
	}
}

func TestIconDownloader_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/noimage.json":
			w.Write([]byte(`{"name":"x"}`))
		case "/garbage":
			w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	d, _ := NewIconDownloader(t.TempDir(), 24)

	tests := []struct {
		name string
		id   string
		uri  string
	}{
		{"invalid id", "../..", server.URL + "/garbage"},
		{"empty uri", "Mint", ""},
		{"not found", "Mint", server.URL + "/missing"},
		{"metadata without image", "Mint", server.URL + "/noimage.json"},
		{"undecodable", "Mint", server.URL + "/garbage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.DownloadIcon(context.Background(), tt.id, tt.uri); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestResolveURI(t *testing.T) {
	tests := map[string]string{
		"ipfs://QmHash":       "https://ipfs.io/ipfs/QmHash",
		"ipfs://ipfs/QmHash":  "https://ipfs.io/ipfs/QmHash",
		"https://x.io/a.json": "https://x.io/a.json",
	}
	for in, want := range tests {
		if got := resolveURI(in); got != want {
			t.Errorf("resolveURI(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeSymbol(t *testing.T) {
	if got := sanitizeSymbol("../etc/passwd"); got != "etcpasswd" {
		t.Errorf("Expected etcpasswd, got %s", got)
	}
}
