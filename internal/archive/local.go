// Package archive stores raw profile payloads for later inspection.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalArchiver writes payloads to the local filesystem.
type LocalArchiver struct {
	baseDir string
}

// NewLocal creates a filesystem-backed archiver rooted at baseDir.
func NewLocal(baseDir string) (*LocalArchiver, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &LocalArchiver{baseDir: baseDir}, nil
}

// Save writes data to a file under the base directory.
func (a *LocalArchiver) Save(_ context.Context, objectName string, data []byte) error {
	if strings.TrimSpace(objectName) == "" {
		return fmt.Errorf("object name is required")
	}

	fullPath := filepath.Join(a.baseDir, objectName)

	// Reject names that escape the base directory.
	cleanBase := filepath.Clean(a.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected in %q", objectName)
	}

	if err := os.MkdirAll(filepath.Dir(cleanFull), 0o750); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(cleanFull, data, 0o600); err != nil {
		return fmt.Errorf("write payload file: %w", err)
	}
	return nil
}
