package input

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"launcher/internal/apperrors"
)

// FileSecretResolver reads secrets mounted as files under a directory,
// one file per reference.
type FileSecretResolver struct {
	dir string
}

// NewFileSecretResolver creates a resolver rooted at dir.
func NewFileSecretResolver(dir string) *FileSecretResolver {
	return &FileSecretResolver{dir: dir}
}

// Resolve returns the trimmed contents of dir/ref. References must be
// relative paths that stay inside dir.
func (r *FileSecretResolver) Resolve(_ context.Context, ref string) (string, error) {
	if err := validateRef(ref); err != nil {
		return "", apperrors.Validation("secretRefs", err.Error())
	}

	data, err := os.ReadFile(filepath.Join(r.dir, filepath.FromSlash(ref)))
	if errors.Is(err, fs.ErrNotExist) {
		return "", apperrors.NotFound("secret", ref)
	}
	if err != nil {
		return "", apperrors.Internal("input.resolveSecret", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func validateRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("secret reference is empty")
	}
	if filepath.IsAbs(ref) || strings.HasPrefix(ref, "/") {
		return fmt.Errorf("secret reference must be relative, not absolute")
	}
	for _, part := range strings.Split(ref, "/") {
		if part == ".." {
			return fmt.Errorf("path traversal not allowed")
		}
	}
	return nil
}
