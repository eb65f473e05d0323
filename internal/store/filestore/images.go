package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/facegate/internal/identity"
)

const authenticationDir = "Authentication"

// authImageLayout is the timestamp segment of an archived image name.
const authImageLayout = "20060102T150405Z"

// ImageArchive stores the images captured during authentication
// attempts. Archiving is best effort; callers log failures but never
// let them change an authentication decision.
type ImageArchive struct {
	root string
}

func NewImageArchive(root string) *ImageArchive {
	return &ImageArchive{root: root}
}

// Save writes an attempt image under
// Authentication/<role>/<username>/auth_<success|failed>_<timestamp>_<id>.jpg
// and returns the path.
func (a *ImageArchive) Save(key identity.Key, success bool, at time.Time, image []byte) (string, error) {
	dir := filepath.Join(a.root, authenticationDir, string(key.Role), key.Username)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create authentication directory: %w", err)
	}

	status := "failed"
	if success {
		status = "success"
	}
	name := fmt.Sprintf("auth_%s_%s_%s.jpg", status, at.UTC().Format(authImageLayout), uuid.NewString())
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", fmt.Errorf("failed to write attempt image: %w", err)
	}
	return path, nil
}
