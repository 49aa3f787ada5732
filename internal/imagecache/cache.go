// Package imagecache resolves card artwork to local files, downloading from
// the remote image source on first access. Concurrent requests for the same
// resource are coalesced so at most one outbound download runs per key.
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/shirogane/cardvision/internal/cardid"
	"github.com/shirogane/cardvision/internal/metrics"
)

// ResourceType identifies an artwork variant. The set is closed.
type ResourceType string

const (
	TypeNormal  ResourceType = "normal"
	TypeSmall   ResourceType = "small"
	TypeCropped ResourceType = "cropped"
)

// remoteSuffix maps a resource type to the path segment used by the remote source.
var remoteSuffix = map[ResourceType]string{
	TypeNormal:  "cards",
	TypeSmall:   "cards_small",
	TypeCropped: "cards_cropped",
}

// Types lists all valid resource types.
func Types() []ResourceType {
	return []ResourceType{TypeNormal, TypeSmall, TypeCropped}
}

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	_, ok := remoteSuffix[t]
	return ok
}

var (
	// ErrUnknownType is returned for a resource type outside the closed set.
	ErrUnknownType = errors.New("unknown resource type")
	// ErrNotAnImage is returned when the remote response is not an image.
	ErrNotAnImage = errors.New("remote response is not an image")
	// ErrEmptyDownload is returned when a download produced a zero-byte file.
	ErrEmptyDownload = errors.New("downloaded file is empty")
	// ErrEmptyIdentifier is returned for an empty identifier.
	ErrEmptyIdentifier = errors.New("empty identifier")
)

// Cache is the on-demand image cache. Files live under
// {baseDir}/{type}/{normalizedIdentifier}.jpg.
type Cache struct {
	baseDir    string
	remoteBase string
	client     *http.Client
	timeout    time.Duration
	group      singleflight.Group
	logger     *zap.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLogger sets a logger for download events.
func WithLogger(l *zap.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

// WithHTTPClient replaces the HTTP client used for downloads.
func WithHTTPClient(client *http.Client) CacheOption {
	return func(c *Cache) { c.client = client }
}

// NewCache creates an image cache rooted at baseDir, downloading misses from
// remoteBase with the given per-download timeout.
func NewCache(baseDir, remoteBase string, timeout time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		baseDir:    baseDir,
		remoteBase: strings.TrimRight(remoteBase, "/"),
		client:     &http.Client{},
		timeout:    timeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LocalPath returns the canonical local path for (resourceType, identifier)
// without touching the filesystem or the network.
func (c *Cache) LocalPath(rt ResourceType, identifier string) (string, error) {
	if !rt.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownType, rt)
	}
	norm := cardid.Normalize(identifier)
	if norm == "" {
		return "", ErrEmptyIdentifier
	}
	return filepath.Join(c.baseDir, string(rt), norm+".jpg"), nil
}

// RemoteURL returns the deterministic source URL for (resourceType, identifier).
func (c *Cache) RemoteURL(rt ResourceType, identifier string) (string, error) {
	suffix, ok := remoteSuffix[rt]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownType, rt)
	}
	norm := cardid.Normalize(identifier)
	if norm == "" {
		return "", ErrEmptyIdentifier
	}
	return fmt.Sprintf("%s/%s/%s.jpg", c.remoteBase, suffix, norm), nil
}

// Resolve returns the local path for (resourceType, identifier), downloading
// on first access. Concurrent calls for the same key share one download; the
// in-flight entry is released when the download finishes, success or not, so
// a later call after a failure retries.
func (c *Cache) Resolve(ctx context.Context, rt ResourceType, identifier string) (string, error) {
	path, err := c.LocalPath(rt, identifier)
	if err != nil {
		return "", err
	}
	if fileNonEmpty(path) {
		return path, nil
	}

	norm := cardid.Normalize(identifier)
	key := string(rt) + ":" + norm
	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: an earlier holder may have just
		// finished writing the file.
		if fileNonEmpty(path) {
			return path, nil
		}
		return path, c.download(rt, norm, path)
	})
	if shared {
		metrics.DownloadsCoalescedTotal.Inc()
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// download fetches the remote image into path via a temp file and atomic
// rename. It deliberately uses its own timeout context rather than a single
// caller's: the result is shared by every coalesced waiter.
func (c *Cache) download(rt ResourceType, norm, path string) error {
	url := fmt.Sprintf("%s/%s/%s.jpg", c.remoteBase, remoteSuffix[rt], norm)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.countDownload(rt, "error")
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.countDownload(rt, "error")
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.countDownload(rt, "error")
		return fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		c.countDownload(rt, "error")
		return fmt.Errorf("%w: content-type %q from %s", ErrNotAnImage, contentType, url)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		c.countDownload(rt, "error")
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmpPath := filepath.Join(filepath.Dir(path), ".tmp-"+uuid.New().String())
	tmp, err := os.Create(tmpPath)
	if err != nil {
		c.countDownload(rt, "error")
		return fmt.Errorf("create temp file: %w", err)
	}
	written, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		c.countDownload(rt, "error")
		if copyErr != nil {
			return fmt.Errorf("write image: %w", copyErr)
		}
		return fmt.Errorf("close temp file: %w", closeErr)
	}
	if written == 0 {
		_ = os.Remove(tmpPath)
		c.countDownload(rt, "error")
		return fmt.Errorf("%w: %s", ErrEmptyDownload, url)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		c.countDownload(rt, "error")
		return fmt.Errorf("move image into place: %w", err)
	}

	c.countDownload(rt, "ok")
	c.logger.Debug("image downloaded",
		zap.String("type", string(rt)),
		zap.String("identifier", norm),
		zap.Int64("bytes", written),
	)
	return nil
}

func (c *Cache) countDownload(rt ResourceType, status string) {
	metrics.DownloadsTotal.WithLabelValues(string(rt), status).Inc()
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
