package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

const (
	defaultIconSize = 24
	maxIconBytes    = 5 << 20
	ipfsGateway     = "https://ipfs.io/ipfs/"
)

// tokenMetadata is the off-chain metadata document a token URI points to.
type tokenMetadata struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Image  string `json:"image"`
}

// IconDownloader handles downloading and caching token icons
type IconDownloader struct {
	basePath string
	size     int
	client   *http.Client
}

// NewIconDownloader creates a downloader that stores size x size PNG thumbnails in dir
func NewIconDownloader(dir string, size int) (*IconDownloader, error) {
	if size <= 0 {
		size = defaultIconSize
	}

	// Ensure directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create icon directory: %w", err)
	}

	// Optimize HTTP Transport to prevent connection leaks
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxConnsPerHost = 10
	transport.IdleConnTimeout = 30 * time.Second

	return &IconDownloader{
		basePath: dir,
		size:     size,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}, nil
}

// DownloadIcon fetches the icon for a token if it is not cached yet and returns the local path.
// uri may point at the image itself or at a JSON metadata document with an "image" field.
func (d *IconDownloader) DownloadIcon(ctx context.Context, id, uri string) (string, error) {
	// Security: Sanitize id to prevent path traversal
	safeID := sanitizeSymbol(id)
	if safeID == "" {
		return "", fmt.Errorf("invalid token id: %q", id)
	}
	if uri == "" {
		return "", fmt.Errorf("no icon uri for %s", id)
	}

	filePath := d.IconPath(safeID)
	if _, err := os.Stat(filePath); err == nil {
		return filePath, nil // Cache Hit
	}

	body, err := d.fetch(ctx, uri)
	if err != nil {
		return "", err
	}

	// Metadata document: follow its image link once
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var meta tokenMetadata
		if err := json.Unmarshal(trimmed, &meta); err != nil {
			return "", fmt.Errorf("failed to decode metadata: %w", err)
		}
		if meta.Image == "" {
			return "", fmt.Errorf("metadata for %s has no image", id)
		}
		if body, err = d.fetch(ctx, meta.Image); err != nil {
			return "", err
		}
	}

	srcImg, err := imaging.Decode(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	// Resize with high-quality Lanczos filter
	resizedImg := imaging.Resize(srcImg, d.size, d.size, imaging.Lanczos)

	if err := imaging.Save(resizedImg, filePath); err != nil {
		return "", fmt.Errorf("failed to save resized image: %w", err)
	}

	return filePath, nil
}

// IconPath returns the local path for a token's icon
func (d *IconDownloader) IconPath(id string) string {
	return filepath.Join(d.basePath, sanitizeSymbol(id)+".png")
}

func (d *IconDownloader) fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveURI(uri), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxIconBytes))
}

// resolveURI maps ipfs:// links onto a public gateway
func resolveURI(uri string) string {
	if cid, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		return ipfsGateway + strings.TrimPrefix(cid, "ipfs/")
	}
	return uri
}

func sanitizeSymbol(symbol string) string {
	res := make([]rune, 0, len(symbol))
	for _, r := range symbol {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			res = append(res, r)
		}
	}
	return string(res)
}
