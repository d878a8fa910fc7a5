package fs

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// AllowedExtensions lists the accepted program file extensions.
var AllowedExtensions = []string{".gcode", ".nc"}

// ErrExtensionNotAllowed is returned for files that are not G-code programs.
var ErrExtensionNotAllowed = errors.New("Only .gcode and .nc files are allowed.")

var whitespaceRun = regexp.MustCompile(`\s+`)

// UploadStore persists uploaded program files under a single directory.
type UploadStore struct {
	dir string
	now func() time.Time
}

// NewUploadStore returns a store rooted at dir. The directory is created
// on first use.
func NewUploadStore(dir string) *UploadStore {
	return &UploadStore{dir: dir, now: time.Now}
}

// Dir returns the storage directory.
func (s *UploadStore) Dir() string { return s.dir }

// Save copies r to a new file named after the upload time, a BLAKE3 digest
// of the content and the sanitized original name. The write goes through a
// temporary file and a rename so a partially written upload is never
// visible under its final name.
func (s *UploadStore) Save(originalName string, r io.Reader) (string, error) {
	name, err := SanitizeName(originalName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := blake3.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}

	digest := hex.EncodeToString(hasher.Sum(nil)[:4])
	final := filepath.Join(s.dir, fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), digest, name))
	if err := os.Rename(tmpPath, final); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return final, nil
}

// Resolve maps a path received from a client to a file inside the store.
// Bare names are looked up in the store directory; absolute paths must
// already point inside it.
func (s *UploadStore) Resolve(p string) (string, error) {
	if p == "" {
		return "", errors.New("empty path")
	}
	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(p) {
		if inside(dir, p) {
			return filepath.Clean(p), nil
		}
		return "", fmt.Errorf("%s is outside the upload directory", p)
	}
	// Paths returned by Save are relative to the working directory.
	if abs, err := filepath.Abs(p); err == nil && inside(dir, abs) {
		return abs, nil
	}
	candidate := filepath.Join(dir, p)
	if !inside(dir, candidate) {
		return "", fmt.Errorf("%s is outside the upload directory", p)
	}
	return candidate, nil
}

func inside(dir, p string) bool {
	rel, err := filepath.Rel(dir, filepath.Clean(p))
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// SanitizeName checks the extension of an uploaded file name and replaces
// whitespace runs with underscores.
func SanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if !HasAllowedExtension(name) {
		return "", ErrExtensionNotAllowed
	}
	return whitespaceRun.ReplaceAllString(name, "_"), nil
}

// HasAllowedExtension reports whether name ends in an accepted extension,
// ignoring case.
func HasAllowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
