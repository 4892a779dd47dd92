package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"clip-compiler/internal"
	"clip-compiler/internal/model"
	"clip-compiler/internal/s3"
)

// NewOrigin builds the configured remote origin, or nil when none is set.
func NewOrigin(cfg internal.Config, store s3.Client) (Origin, error) {
	switch cfg.MediaOrigin {
	case "":
		return nil, nil
	case "s3":
		return &S3Origin{store: store, prefix: cfg.MediaPrefix}, nil
	case "http":
		return NewHTTPOrigin(cfg.MediaOriginURL, cfg.MediaOriginToken), nil
	default:
		return nil, fmt.Errorf("media: unknown origin kind %q", cfg.MediaOrigin)
	}
}

// HTTPOrigin fetches media from the web application's authenticated media
// endpoint. A non-2xx response is a fetch failure.
type HTTPOrigin struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPOrigin(baseURL, token string) *HTTPOrigin {
	return &HTTPOrigin{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

func (o *HTTPOrigin) Fetch(ctx context.Context, ref model.MediaReference, dst io.Writer) error {
	url := fmt.Sprintf("%s/api/media/%d/%d/download", o.baseURL, ref.UserID, ref.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch media %d: %w", ref.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetch media %d: http %d", ref.ID, resp.StatusCode)
	}
	_, err = io.Copy(dst, resp.Body)
	return err
}

// S3Origin fetches media objects stored by the web application in the shared
// bucket, keyed by owning user and the recorded file name.
type S3Origin struct {
	store  s3.Client
	prefix string
}

func (o *S3Origin) Fetch(ctx context.Context, ref model.MediaReference, dst io.Writer) error {
	key := fmt.Sprintf("%s%d/%s", o.prefix, ref.UserID, filepath.Base(ref.FilePath))
	obj, err := o.store.GetReader(ctx, key)
	if err != nil {
		if errors.Is(err, s3.ErrNotFound) {
			return fmt.Errorf("media %d: object %s not in bucket", ref.ID, key)
		}
		return fmt.Errorf("fetch media %d: %w", ref.ID, err)
	}
	defer obj.Reader.Close()
	_, err = io.Copy(dst, obj.Reader)
	return err
}
