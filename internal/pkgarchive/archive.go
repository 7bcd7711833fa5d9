package pkgarchive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"platebatch/internal/services"
)

// FixedZipTime ensures byte-for-byte reproducible archives (1980-01-01 UTC).
var FixedZipTime = time.Unix(315532800, 0).UTC()

// Entry describes one archive member.
type Entry struct {
	Name string
	Size int64
}

// Extract decompresses every entry of archivePath into a new directory
// created under parentDir (the system temp dir when empty) and returns it.
func Extract(archivePath, parentDir string) (string, error) {
	info, err := os.Stat(archivePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", services.Wrap(services.ErrMissingSource, "archive", "extract", archivePath, err)
		}
		return "", fmt.Errorf("stat archive %s: %w", archivePath, err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrCorruptArchive, "archive", "extract", archivePath+" is a directory", nil)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", services.Wrap(services.ErrCorruptArchive, "archive", "open", archivePath, err)
	}
	defer zr.Close()

	if parentDir != "" {
		if err := os.MkdirAll(parentDir, 0o755); err != nil {
			return "", fmt.Errorf("create extraction parent: %w", err)
		}
	}
	dir, err := os.MkdirTemp(parentDir, dirPrefix(archivePath))
	if err != nil {
		return "", fmt.Errorf("create working directory: %w", err)
	}

	done := false
	defer func() {
		if !done {
			_ = os.RemoveAll(dir)
		}
	}()

	for _, f := range zr.File {
		name, err := entryPath(f.Name)
		if err != nil {
			return "", services.Wrap(services.ErrCorruptArchive, "archive", "extract", archivePath, err)
		}
		target := filepath.Join(dir, filepath.FromSlash(name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", fmt.Errorf("create %s: %w", name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", fmt.Errorf("create parent for %s: %w", name, err)
		}
		if err := writeEntry(f, target); err != nil {
			return "", services.Wrap(services.ErrCorruptArchive, "archive", "extract "+name, archivePath, err)
		}
	}

	done = true
	return dir, nil
}

func dirPrefix(archivePath string) string {
	base := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	if base == "" || base == "." {
		base = "package"
	}
	return base + "-"
}

// entryPath validates a zip member name and returns it as a clean,
// slash-separated relative path.
func entryPath(name string) (string, error) {
	s := strings.TrimSuffix(strings.ReplaceAll(name, "\\", "/"), "/")
	if s == "" {
		return "", fmt.Errorf("empty entry name")
	}
	if !filepath.IsLocal(filepath.FromSlash(s)) {
		return "", fmt.Errorf("entry %q escapes the package root", name)
	}
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(s))), nil
}

func writeEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Repack writes every regular file under workDir into a new archive at
// archivePath, using slash-separated paths relative to workDir as entry names.
// Directories with no contents are kept as "name/" entries; other directory
// entries are implied by their files. The destination is replaced only after
// the archive is complete.
func Repack(workDir, archivePath string) (err error) {
	info, err := os.Stat(workDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrMissingSource, "archive", "repack", workDir, err)
		}
		return fmt.Errorf("stat working directory: %w", err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrValidation, "archive", "repack", workDir+" is not a directory", nil)
	}
	if inside(workDir, archivePath) {
		return services.Wrap(services.ErrValidation, "archive", "repack", "destination must be outside the working directory", nil)
	}

	files, err := listFiles(workDir)
	if err != nil {
		return err
	}

	destDir := filepath.Dir(archivePath)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	tmp, err := os.CreateTemp(destDir, "."+filepath.Base(archivePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	zw := zip.NewWriter(tmp)
	for _, rel := range files {
		if err = addFile(zw, workDir, rel); err != nil {
			return err
		}
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync archive: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err = os.Rename(tmpPath, archivePath); err != nil {
		return fmt.Errorf("move archive into place: %w", err)
	}
	return nil
}

func inside(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return filepath.IsLocal(rel)
}

func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			children, err := os.ReadDir(path)
			if err != nil {
				return err
			}
			if len(children) == 0 {
				files = append(files, filepath.ToSlash(rel)+"/")
			}
		case d.Type().IsRegular():
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk working directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func addFile(zw *zip.Writer, root, rel string) error {
	if strings.HasSuffix(rel, "/") {
		h := &zip.FileHeader{Name: rel, Method: zip.Store}
		h.SetMode(fs.ModeDir | 0o755)
		h.Modified = FixedZipTime
		if _, err := zw.CreateHeader(h); err != nil {
			return fmt.Errorf("create %s: %w", rel, err)
		}
		return nil
	}
	in, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer in.Close()

	h := &zip.FileHeader{Name: rel, Method: zip.Deflate}
	h.SetMode(0o644)
	h.Modified = FixedZipTime
	w, err := zw.CreateHeader(h)
	if err != nil {
		return fmt.Errorf("create %s: %w", rel, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// Entries lists the file members of archivePath in archive order.
func Entries(archivePath string) ([]Entry, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrMissingSource, "archive", "list", archivePath, err)
		}
		return nil, services.Wrap(services.ErrCorruptArchive, "archive", "list", archivePath, err)
	}
	defer zr.Close()

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entries = append(entries, Entry{Name: f.Name, Size: int64(f.UncompressedSize64)})
	}
	return entries, nil
}

// ReadFile returns the contents of the member name without extracting the
// rest of the archive.
func ReadFile(archivePath, name string) ([]byte, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrMissingSource, "archive", "read", archivePath, err)
		}
		return nil, services.Wrap(services.ErrCorruptArchive, "archive", "read", archivePath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, services.Wrap(services.ErrCorruptArchive, "archive", "read", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, services.Wrap(services.ErrCorruptArchive, "archive", "read", name, err)
		}
		return data, nil
	}
	return nil, services.Wrap(services.ErrMissingSource, "archive", "read", fmt.Sprintf("%s has no entry %s", archivePath, name), nil)
}
