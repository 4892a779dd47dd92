package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"clip-compiler/internal"
	"clip-compiler/internal/logging"
	"clip-compiler/internal/model"
	"clip-compiler/internal/s3"
)

// S3Uploader persists the final artifact (and its thumbnail when present) to
// the object store and returns the stored video key.
type S3Uploader struct {
	store  s3.Client
	prefix string
	log    *logging.Logger
}

func NewS3Uploader(cfg internal.Config, store s3.Client, log *logging.Logger) *S3Uploader {
	return &S3Uploader{store: store, prefix: cfg.ArtifactPrefix, log: log}
}

func (u *S3Uploader) Upload(ctx context.Context, res *model.CompilationResult) (string, error) {
	name := filepath.Base(res.OutputPath)
	key := u.prefix + name

	u.log.Infof("upload: storing %s (%d bytes)", key, res.FileSizeBytes)
	if err := u.store.UploadFile(ctx, key, res.OutputPath, contentTypeFor(name)); err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}

	if res.ThumbnailPath != "" {
		thumbKey := strings.TrimSuffix(key, filepath.Ext(key)) + "_thumb.jpg"
		if err := u.store.UploadFile(ctx, thumbKey, res.ThumbnailPath, "image/jpeg"); err != nil {
			u.log.Warnf("upload: thumbnail upload failed: %v", err)
		}
	}
	return key, nil
}

// LocalUploader is the degraded-success path: it copies the artifact into a
// local directory when the object store is unreachable.
type LocalUploader struct {
	dir string
	log *logging.Logger
}

func NewLocalUploader(cfg internal.Config, log *logging.Logger) *LocalUploader {
	return &LocalUploader{dir: cfg.LocalArtifactDir, log: log}
}

func (u *LocalUploader) Upload(ctx context.Context, res *model.CompilationResult) (string, error) {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(u.dir, filepath.Base(res.OutputPath))
	if err := copyFile(res.OutputPath, dst); err != nil {
		return "", fmt.Errorf("persist locally: %w", err)
	}
	if res.ThumbnailPath != "" {
		_ = copyFile(res.ThumbnailPath, strings.TrimSuffix(dst, filepath.Ext(dst))+"_thumb.jpg")
	}
	u.log.Infof("upload: artifact persisted locally at %s", dst)
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "video/mp4"
	}
}
