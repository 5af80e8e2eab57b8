package smtp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrAttachmentNotFound is returned when an attachment path does not exist.
	ErrAttachmentNotFound = errors.New("attachment not found")

	// ErrAttachmentTooLarge is returned when an attachment exceeds the limit.
	ErrAttachmentTooLarge = errors.New("attachment too large")
)

// AttachmentInfo describes a file to attach.
type AttachmentInfo struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Filename string `json:"filename"`
}

// InspectAttachments checks every path before anything is sent. It fails
// on the first missing file or the first file larger than max bytes.
func InspectAttachments(paths []string, max int64) ([]AttachmentInfo, error) {
	out := make([]AttachmentInfo, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrAttachmentNotFound, path)
		}
		if err != nil {
			return nil, fmt.Errorf("stat attachment %s: %w", path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", ErrAttachmentNotFound, path)
		}
		if info.Size() > max {
			return nil, fmt.Errorf("%w: %s exceeds maximum size of %d bytes", ErrAttachmentTooLarge, path, max)
		}
		out = append(out, AttachmentInfo{
			Path:     path,
			Size:     info.Size(),
			Filename: filepath.Base(path),
		})
	}
	return out, nil
}
