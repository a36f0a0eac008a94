package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/debemdeboas/draftsync/internal/config"
)

// New returns the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.BackendConfig) (Backend, error) {
	switch cfg.Type {
	case "http", "":
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		return NewHTTPBackend(cfg.URL, &http.Client{Timeout: timeout}), nil
	case "s3":
		return NewS3Backend(ctx, S3Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}
