package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"platebatch/internal/config"
	"platebatch/internal/logging"
	"platebatch/internal/services"
)

// S3 stores files as objects in a bucket.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

func newS3(ctx context.Context, cfg config.S3, o options, logger *slog.Logger) (*S3, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "open", "s3 bucket not configured", nil)
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if o.credentials != nil {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(o.credentials))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "open", "load aws config", err)
	}
	clientOpts := []func(*s3.Options){func(so *s3.Options) {
		so.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			so.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if o.httpClient != nil {
			so.HTTPClient = o.httpClient
		}
	}}
	clientOpts = append(clientOpts, o.s3Options...)
	return &S3{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// Driver reports the configured driver name.
func (u *S3) Driver() string { return config.UploadDriverS3 }

// Upload puts localPath at <prefix><destination>/<basename> and returns an
// s3:// URI for the object.
func (u *S3) Upload(ctx context.Context, localPath, destination string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", services.Wrap(services.ErrMissingSource, "upload", "open source", fmt.Sprintf("source %q", localPath), err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", services.Wrap(services.ErrMissingSource, "upload", "stat", fmt.Sprintf("source %q", localPath), err)
	}
	key := objectKey(u.prefix, destination, localPath)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(localPath)),
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "upload", "put object", fmt.Sprintf("s3://%s/%s", u.bucket, key), err)
	}
	uri := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	u.logger.Info("object uploaded",
		logging.String(logging.FieldEventType, "upload_complete"),
		logging.String("driver", config.UploadDriverS3),
		logging.String("target", uri),
		logging.Int64("bytes", info.Size()),
	)
	return uri, nil
}

func contentType(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".3mf":
		return "model/3mf"
	case ".gcode":
		return "text/x.gcode"
	default:
		return "application/octet-stream"
	}
}
