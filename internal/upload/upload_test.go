package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"platebatch/internal/config"
	"platebatch/internal/services"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	status  int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.status != 0 {
		return &http.Response{StatusCode: f.status, Body: io.NopCloser(strings.NewReader("<Error><Code>InternalError</Code></Error>")), Header: http.Header{}}, nil
	}
	if req.Method != http.MethodPut {
		return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	body, _ := io.ReadAll(req.Body)
	if dec, ok := decodeChunked(body); ok {
		body = dec
	}
	f.mu.Lock()
	f.objects[strings.TrimPrefix(req.URL.Path, "/")] = body
	f.types[strings.TrimPrefix(req.URL.Path, "/")] = req.Header.Get("Content-Type")
	f.mu.Unlock()
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"ETag": {"\"etag\""}}}, nil
}

// decodeChunked unwraps a single-chunk aws-chunked payload.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	var size int
	if _, err := fmt.Sscanf(parts[0], "%x", &size); err != nil {
		return nil, false
	}
	if len(parts[1]) != size || parts[2] != "0" {
		return nil, false
	}
	return []byte(parts[1]), true
}

func openFakeS3(t *testing.T, fake *fakeS3, prefix string) Uploader {
	t.Helper()
	cfg := config.Upload{
		Enabled: true,
		Driver:  config.UploadDriverS3,
		S3: config.S3{
			Bucket:    "plates",
			Region:    "us-east-1",
			Endpoint:  "https://mock.s3.local",
			Prefix:    prefix,
			PathStyle: true,
		},
	}
	uploader, err := Open(context.Background(), cfg,
		WithHTTPClient(&http.Client{Transport: fake}),
		WithCredentials(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
		WithS3Options(func(o *s3.Options) {
			o.RetryMaxAttempts = 1
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return uploader
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFSUploadCopiesBeneathRoot(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, t.TempDir(), "batch_1.3mf", "archive-bytes")

	uploader, err := Open(context.Background(), config.Upload{Driver: config.UploadDriverFS, FSRoot: root})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if uploader.Driver() != config.UploadDriverFS {
		t.Fatalf("unexpected driver %q", uploader.Driver())
	}
	target, err := uploader.Upload(context.Background(), src, "lab/run-1")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want := filepath.Join(root, "lab", "run-1", "batch_1.3mf")
	if target != want {
		t.Fatalf("target = %q, want %q", target, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read uploaded: %v", err)
	}
	if string(data) != "archive-bytes" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestFSUploadRejectsEscapingDestination(t *testing.T) {
	src := writeFile(t, t.TempDir(), "batch_1.3mf", "x")
	uploader, err := NewFS(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	_, err = uploader.Upload(context.Background(), src, "../outside")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFSUploadMissingSource(t *testing.T) {
	uploader, err := NewFS(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	_, err = uploader.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.3mf"), "")
	if !errors.Is(err, services.ErrMissingSource) {
		t.Fatalf("expected missing source error, got %v", err)
	}
}

func TestNewFSRequiresRoot(t *testing.T) {
	if _, err := NewFS("  ", nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestS3UploadPutsObject(t *testing.T) {
	fake := newFakeS3()
	uploader := openFakeS3(t, fake, "runs/")
	src := writeFile(t, t.TempDir(), "batch_2.3mf", "plate-two")

	uri, err := uploader.Upload(context.Background(), src, "/2026-10/")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if uri != "s3://plates/runs/2026-10/batch_2.3mf" {
		t.Fatalf("unexpected uri %q", uri)
	}
	body, ok := fake.objects["plates/runs/2026-10/batch_2.3mf"]
	if !ok {
		t.Fatalf("object not stored; have %v", fake.objects)
	}
	if string(body) != "plate-two" {
		t.Fatalf("unexpected body %q", body)
	}
	if got := fake.types["plates/runs/2026-10/batch_2.3mf"]; got != "model/3mf" {
		t.Fatalf("content type = %q", got)
	}
}

func TestS3UploadServerErrorIsTransient(t *testing.T) {
	fake := newFakeS3()
	fake.status = http.StatusInternalServerError
	uploader := openFakeS3(t, fake, "")
	src := writeFile(t, t.TempDir(), "batch_1.gcode", "G1 X0")

	_, err := uploader.Upload(context.Background(), src, "")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Upload{Driver: "ftp"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestObjectKey(t *testing.T) {
	cases := []struct {
		prefix, destination, path, want string
	}{
		{"", "", "/tmp/a.3mf", "a.3mf"},
		{"p/", "x/y", "/tmp/a.3mf", "p/x/y/a.3mf"},
		{"", "/x/", "b.gcode", "x/b.gcode"},
	}
	for _, tc := range cases {
		if got := objectKey(tc.prefix, tc.destination, tc.path); got != tc.want {
			t.Errorf("objectKey(%q, %q, %q) = %q, want %q", tc.prefix, tc.destination, tc.path, got, tc.want)
		}
	}
}
