// Package watcher ingests pre-fetched card artwork from a drop folder.
// Files named {identifier}.{ext} dropped into the incoming directory are
// validated and land in the image cache under the normalized identifier,
// where the embedding pipeline picks them up without a download. The cache
// layout is JPEG-only, so non-JPEG drops are transcoded on the way in.
package watcher

import (
	"context"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/shirogane/cardvision/internal/cardid"
	"github.com/shirogane/cardvision/internal/imagecache"
)

// Writers often trigger several events per file; wait for quiet before
// ingesting so half-written files are not picked up.
const defaultDebounce = 400 * time.Millisecond

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
}

// Ingest watches a drop folder and moves valid artwork into the image cache.
type Ingest struct {
	incoming string
	cache    *imagecache.Cache
	debounce time.Duration
	// onIngest, when set, is called after a file lands in the cache.
	onIngest func(identifier string)
	logger   *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timers   map[string]*time.Timer
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// IngestOption configures an Ingest.
type IngestOption func(*Ingest)

// WithDebounce overrides the quiet period before a dropped file is ingested.
func WithDebounce(d time.Duration) IngestOption {
	return func(i *Ingest) { i.debounce = d }
}

// WithOnIngest registers a callback invoked with the normalized identifier
// after each successful ingest.
func WithOnIngest(fn func(identifier string)) IngestOption {
	return func(i *Ingest) { i.onIngest = fn }
}

// NewIngest creates a drop-folder watcher feeding cache.
func NewIngest(incomingDir string, cache *imagecache.Cache, logger *zap.Logger, opts ...IngestOption) *Ingest {
	if logger == nil {
		logger = zap.NewNop()
	}
	ing := &Ingest{
		incoming: incomingDir,
		cache:    cache,
		debounce: defaultDebounce,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// Start creates the incoming directory if needed and begins watching. It
// returns immediately; the event loop runs until ctx is cancelled or Stop is
// called.
func (i *Ingest) Start(ctx context.Context) error {
	i.mu.Lock()
	if i.started {
		i.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(i.incoming, 0755); err != nil {
		i.mu.Unlock()
		return fmt.Errorf("create incoming dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		i.mu.Unlock()
		return err
	}
	if err := watcher.Add(i.incoming); err != nil {
		_ = watcher.Close()
		i.mu.Unlock()
		return fmt.Errorf("watch incoming dir: %w", err)
	}
	i.watcher = watcher
	i.started = true
	i.mu.Unlock()

	i.logger.Info("drop-folder ingest watching", zap.String("dir", i.incoming))
	go i.run(ctx)
	return nil
}

func (i *Ingest) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			i.Stop()
			return
		case <-i.done:
			return
		case ev, ok := <-i.watcher.Events:
			if !ok {
				return
			}
			i.handleEvent(ev)
		case err, ok := <-i.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				i.logger.Debug("ingest watcher error", zap.Error(err))
			}
		}
	}
}

func (i *Ingest) handleEvent(ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		return
	}
	if !imageExtensions[strings.ToLower(filepath.Ext(ev.Name))] {
		return
	}
	i.scheduleIngest(ev.Name)
}

func (i *Ingest) scheduleIngest(path string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if t, ok := i.timers[path]; ok {
		t.Stop()
	}
	i.timers[path] = time.AfterFunc(i.debounce, func() {
		i.mu.Lock()
		delete(i.timers, path)
		i.mu.Unlock()
		i.ingestFile(path)
	})
}

// ingestFile validates one dropped file and lands it in the cache. Invalid
// drops are left in place for the operator to inspect.
func (i *Ingest) ingestFile(path string) {
	identifier := cardid.Normalize(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if identifier == "" {
		i.logger.Warn("dropped file has no usable identifier in its name", zap.String("path", path))
		return
	}
	img, err := decodeImage(path)
	if err != nil {
		i.logger.Warn("dropped file is not a decodable image", zap.String("path", path), zap.Error(err))
		return
	}

	dest, err := i.cache.LocalPath(imagecache.TypeNormal, identifier)
	if err != nil {
		i.logger.Warn("ingest skipped", zap.String("path", path), zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		i.logger.Warn("create cache dir failed", zap.Error(err))
		return
	}
	if err := i.placeInCache(path, img, dest); err != nil {
		i.logger.Warn("move into cache failed", zap.String("path", path), zap.Error(err))
		return
	}
	i.logger.Info("artwork ingested",
		zap.String("identifier", identifier),
		zap.String("dest", dest),
	)
	if i.onIngest != nil {
		i.onIngest(identifier)
	}
}

// placeInCache moves a JPEG drop as-is and transcodes anything else, so the
// file behind the cache's .jpg path is always real JPEG data.
func (i *Ingest) placeInCache(src string, img image.Image, dest string) error {
	ext := strings.ToLower(filepath.Ext(src))
	if ext == ".jpg" || ext == ".jpeg" {
		return os.Rename(src, dest)
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 92}); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Remove(src)
}

// SyncExisting ingests files already sitting in the drop folder. Call after
// Start to pick up drops that happened while the service was down.
func (i *Ingest) SyncExisting() {
	entries, err := os.ReadDir(i.incoming)
	if err != nil {
		i.logger.Warn("sync existing drops failed", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		i.ingestFile(filepath.Join(i.incoming, entry.Name()))
	}
}

// Stop stops the watcher and cancels pending ingests.
func (i *Ingest) Stop() {
	i.mu.Lock()
	if !i.started || i.watcher == nil {
		i.mu.Unlock()
		return
	}
	for path, t := range i.timers {
		t.Stop()
		delete(i.timers, path)
	}
	_ = i.watcher.Close()
	i.watcher = nil
	i.started = false
	i.mu.Unlock()
	i.stopOnce.Do(func() { close(i.done) })
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
