package imagecache

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/shirogane/cardvision/internal/cardid"
)

// TypeStats holds file count and aggregate size for one resource type.
type TypeStats struct {
	Files int64 `json:"files"`
	Bytes int64 `json:"bytes"`
}

// Stats reports per-type file counts and sizes plus totals.
type Stats struct {
	Types      map[ResourceType]TypeStats `json:"types"`
	TotalFiles int64                      `json:"total_files"`
	TotalBytes int64                      `json:"total_bytes"`
}

// cachedExtensions are the file extensions the cache may contain. The layout
// is JPEG-only; anything else in the cache directories is not ours to count
// or remove.
var cachedExtensions = map[string]bool{".jpg": true}

// CollectStats scans the cache directories and reports per-type counts and sizes.
func (c *Cache) CollectStats() (*Stats, error) {
	stats := &Stats{Types: make(map[ResourceType]TypeStats)}
	for _, rt := range Types() {
		dir := filepath.Join(c.baseDir, string(rt))
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			stats.Types[rt] = TypeStats{}
			continue
		}
		if err != nil {
			return nil, err
		}
		var ts TypeStats
		for _, entry := range entries {
			if entry.IsDir() || !cachedExtensions[filepath.Ext(entry.Name())] {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			ts.Files++
			ts.Bytes += info.Size()
		}
		stats.Types[rt] = ts
		stats.TotalFiles += ts.Files
		stats.TotalBytes += ts.Bytes
	}
	return stats, nil
}

// Cleanup removes cached files whose identifier is not in liveIdentifiers
// (orphans left behind after cards are removed from the catalog).
// Identifiers are normalized before comparison. Returns the number of files removed.
func (c *Cache) Cleanup(ctx context.Context, liveIdentifiers []string) (int, error) {
	live := make(map[string]bool, len(liveIdentifiers))
	for _, id := range liveIdentifiers {
		if norm := cardid.Normalize(id); norm != "" {
			live[norm] = true
		}
	}

	removed := 0
	for _, rt := range Types() {
		dir := filepath.Join(c.baseDir, string(rt))
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return removed, err
		}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			if entry.IsDir() {
				continue
			}
			ext := filepath.Ext(entry.Name())
			if !cachedExtensions[ext] {
				continue
			}
			identifier := strings.TrimSuffix(entry.Name(), ext)
			if live[identifier] {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				c.logger.Warn("orphan removal failed", zap.String("path", path), zap.Error(err))
				continue
			}
			removed++
			c.logger.Debug("orphan removed", zap.String("path", path))
		}
	}
	return removed, nil
}
