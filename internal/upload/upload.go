package upload

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"platebatch/internal/config"
	"platebatch/internal/logging"
	"platebatch/internal/services"
)

// Uploader publishes a local file and returns an identifier for the stored copy.
type Uploader interface {
	Upload(ctx context.Context, localPath, destination string) (string, error)
	Driver() string
}

// Option customises the uploader returned by Open.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	httpClient  *http.Client
	credentials aws.CredentialsProvider
	s3Options   []func(*s3.Options)
}

// WithLogger attaches a logger used for upload diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client used by the s3 driver.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithCredentials supplies explicit credentials to the s3 driver instead of
// the default provider chain.
func WithCredentials(provider aws.CredentialsProvider) Option {
	return func(o *options) {
		o.credentials = provider
	}
}

// WithS3Options appends raw client option functions for the s3 driver.
func WithS3Options(fns ...func(*s3.Options)) Option {
	return func(o *options) {
		o.s3Options = append(o.s3Options, fns...)
	}
}

// Open builds the uploader selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Upload, opts ...Option) (Uploader, error) {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	logger := logging.NewComponentLogger(o.logger, "upload")
	switch cfg.Driver {
	case config.UploadDriverFS, "":
		return NewFS(cfg.FSRoot, logger)
	case config.UploadDriverS3:
		return newS3(ctx, cfg.S3, o, logger)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "upload", "open", fmt.Sprintf("unknown driver %q", cfg.Driver), nil)
	}
}

// objectKey joins the destination and file name under an optional prefix.
func objectKey(prefix, destination, localPath string) string {
	base := filepath.Base(localPath)
	destination = strings.Trim(filepath.ToSlash(destination), "/")
	key := path.Join(destination, base)
	return prefix + key
}
