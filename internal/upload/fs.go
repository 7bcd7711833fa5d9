package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"platebatch/internal/config"
	"platebatch/internal/fileutil"
	"platebatch/internal/logging"
	"platebatch/internal/services"
)

// FS copies files beneath a local root directory.
type FS struct {
	root   string
	logger *slog.Logger
}

// NewFS returns an fs uploader rooted at root.
func NewFS(root string, logger *slog.Logger) (*FS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "open", "fs root not configured", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FS{root: root, logger: logger}, nil
}

// Driver reports the configured driver name.
func (f *FS) Driver() string { return config.UploadDriverFS }

// Upload copies localPath to <root>/<destination>/<basename> and returns the
// target path.
func (f *FS) Upload(ctx context.Context, localPath, destination string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", services.Wrap(services.ErrMissingSource, "upload", "stat", fmt.Sprintf("source %q", localPath), err)
	}
	target := filepath.Join(f.root, filepath.FromSlash(objectKey("", destination, localPath)))
	rel, err := filepath.Rel(f.root, target)
	if err != nil || !filepath.IsLocal(rel) {
		return "", services.Wrap(services.ErrValidation, "upload", "resolve", fmt.Sprintf("destination %q escapes upload root", destination), err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "upload", "mkdir", "create destination directory", err)
	}
	if err := fileutil.CopyFileVerified(localPath, target); err != nil {
		return "", services.Wrap(services.ErrTransient, "upload", "copy", fmt.Sprintf("copy to %q", target), err)
	}
	f.logger.Info("file uploaded",
		logging.String(logging.FieldEventType, "upload_complete"),
		logging.String("driver", config.UploadDriverFS),
		logging.String("target", target),
	)
	return target, nil
}
