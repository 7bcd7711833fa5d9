package document

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"platebatch/internal/services"
)

// Package-relative locations of the edited documents.
const (
	GeometryEntry = "3D/3dmodel.model"
	MetadataEntry = "Metadata/Slic3r_PE_model.config"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Text is a decoded document body.
type Text struct {
	Body string
	// BOM records whether the file carried a UTF-8 byte-order mark.
	BOM bool
}

// GeometryPath returns the geometry document path inside an extracted package.
func GeometryPath(workDir string) string {
	return filepath.Join(workDir, filepath.FromSlash(GeometryEntry))
}

// MetadataPath returns the metadata document path inside an extracted package.
func MetadataPath(workDir string) string {
	return filepath.Join(workDir, filepath.FromSlash(MetadataEntry))
}

// Read loads the document at path.
func Read(path string) (Text, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Text{}, services.Wrap(services.ErrMissingSource, "document", "read", path, err)
		}
		return Text{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Decode(raw, path)
}

// Decode converts raw document bytes into Text. name is used in errors.
func Decode(raw []byte, name string) (Text, error) {
	if !utf8.Valid(raw) {
		return Text{}, services.Wrap(services.ErrCorruptArchive, "document", "decode", name+" is not valid UTF-8", nil)
	}
	hasBOM := bytes.HasPrefix(raw, utf8BOM)
	decoded, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), raw)
	if err != nil {
		return Text{}, services.Wrap(services.ErrCorruptArchive, "document", "decode", name, err)
	}
	return Text{Body: string(decoded), BOM: hasBOM}, nil
}

// Encode returns the bytes to write for t.
func Encode(t Text) []byte {
	if !t.BOM {
		return []byte(t.Body)
	}
	out := make([]byte, 0, len(utf8BOM)+len(t.Body))
	out = append(out, utf8BOM...)
	return append(out, t.Body...)
}

// Write replaces the document at path with t, preserving the existing file
// mode when the file is already present.
func Write(path string, t Text) error {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, Encode(t), mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WithBody returns a copy of t carrying body.
func (t Text) WithBody(body string) Text {
	t.Body = body
	return t
}
