package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clip-compiler/internal"
	"clip-compiler/internal/logging"
	"clip-compiler/internal/model"
)

// ErrNotConfigured is returned when a download is needed but no remote origin
// is configured. This is a configuration problem, not a media problem.
var ErrNotConfigured = errors.New("media: remote origin not configured")

// Origin fetches the binary content of a media file from the remote system.
type Origin interface {
	Fetch(ctx context.Context, ref model.MediaReference, dst io.Writer) error
}

// Resolver maps a media reference to a guaranteed-local path, downloading
// into a shared on-disk cache when the recorded path is not present locally.
type Resolver struct {
	cacheDir     string
	pathRewrites map[string]string
	origin       Origin // nil when the worker is origin-less
	log          *logging.Logger
}

func NewResolver(cfg internal.Config, origin Origin, log *logging.Logger) (*Resolver, error) {
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create cache dir: %w", err)
	}
	return &Resolver{
		cacheDir:     cfg.CacheDir,
		pathRewrites: cfg.PathRewrites,
		origin:       origin,
		log:          log,
	}, nil
}

// Resolve returns a local path for ref. A second resolve of the same media id
// against the same cache directory is a cache hit and performs no transfer.
func (r *Resolver) Resolve(ctx context.Context, ref model.MediaReference) (string, error) {
	if p := r.translate(ref.FilePath); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	cachePath := r.cachePath(ref)
	if _, err := os.Stat(cachePath); err == nil {
		// Refresh the mtime so the sweep measures idleness, not age; a
		// hit during a long run must not be evicted mid-pipeline.
		now := time.Now()
		if err := os.Chtimes(cachePath, now, now); err != nil {
			r.log.Warnf("resolver: touch %s: %v", cachePath, err)
		}
		r.log.Infof("resolver: cache hit for media %d", ref.ID)
		return cachePath, nil
	}

	if r.origin == nil {
		return "", ErrNotConfigured
	}

	r.log.Infof("resolver: fetching media %d from origin", ref.ID)
	if err := r.download(ctx, ref, cachePath); err != nil {
		return "", fmt.Errorf("media %d: %w", ref.ID, err)
	}
	return cachePath, nil
}

// download writes to a temp name and renames into place so concurrent workers
// never observe a partial file.
func (r *Resolver) download(ctx context.Context, ref model.MediaReference, cachePath string) error {
	tmp, err := os.CreateTemp(r.cacheDir, ".download-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := r.origin.Fetch(ctx, ref, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, cachePath)
}

// cachePath is deterministic per media id so repeated resolves collapse onto
// one cache entry regardless of which run asked first.
func (r *Resolver) cachePath(ref model.MediaReference) string {
	ext := filepath.Ext(ref.FilePath)
	if ext == "" {
		ext = ".mp4"
	}
	return filepath.Join(r.cacheDir, fmt.Sprintf("media-%d%s", ref.ID, ext))
}

// translate applies the host path translation table to a recorded path.
func (r *Resolver) translate(recorded string) string {
	if recorded == "" {
		return ""
	}
	for from, to := range r.pathRewrites {
		if strings.HasPrefix(recorded, from) {
			return to + strings.TrimPrefix(recorded, from)
		}
	}
	return recorded
}

// Sweep evicts cache entries older than maxAge. Run by the worker's janitor.
func (r *Resolver) Sweep(maxAge time.Duration) {
	entries, err := os.ReadDir(r.cacheDir)
	if err != nil {
		r.log.Warnf("resolver: sweep: %v", err)
		return
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(r.cacheDir, e.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		r.log.Infof("resolver: sweep evicted %d cached files", removed)
	}
}
