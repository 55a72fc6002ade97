// Core image data structure with thread-safe operations
package core

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	errs "photobooth/internal/errors"
)

// SourceImage holds one decoded capture shared read-only by all variant
// tasks. Every reader gets its own clone.
type SourceImage struct {
	mu       sync.RWMutex
	original gocv.Mat
	filepath string
	metadata ImageMetadata
}

// ImageMetadata contains image information
type ImageMetadata struct {
	Width    int
	Height   int
	Channels int
	Type     gocv.MatType
	Format   string
}

// NewSourceImage validates mat and stores a private clone of it
func NewSourceImage(mat gocv.Mat, path string) (*SourceImage, error) {
	if err := ValidateImage(mat); err != nil {
		return nil, err
	}

	channels := mat.Channels()
	if channels != 1 && channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: %d channels", errs.ErrUnsupportedFormat, channels)
	}

	return &SourceImage{
		original: mat.Clone(),
		filepath: path,
		metadata: ImageMetadata{
			Width:    mat.Cols(),
			Height:   mat.Rows(),
			Channels: channels,
			Type:     mat.Type(),
			Format:   getFormatFromPath(path),
		},
	}, nil
}

// Mat returns a copy of the image; the caller closes it
func (img *SourceImage) Mat() gocv.Mat {
	img.mu.RLock()
	defer img.mu.RUnlock()

	if img.original.Empty() {
		return gocv.NewMat()
	}
	return img.original.Clone()
}

// Metadata returns image metadata
func (img *SourceImage) Metadata() ImageMetadata {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.metadata
}

// Filepath returns the path the image was read from
func (img *SourceImage) Filepath() string {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.filepath
}

// Close releases the image
func (img *SourceImage) Close() {
	img.mu.Lock()
	defer img.mu.Unlock()

	if !img.original.Empty() {
		img.original.Close()
	}
	img.original = gocv.NewMat()
}

// getFormatFromPath extracts image format from file path
func getFormatFromPath(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "unknown"
	}
	return strings.ToLower(ext)
}

// ValidateImage validates an OpenCV Mat for basic requirements
func ValidateImage(mat gocv.Mat) error {
	if mat.Empty() {
		return errs.ErrEmptyImage
	}

	if mat.Cols() <= 0 || mat.Rows() <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", mat.Cols(), mat.Rows())
	}

	channels := mat.Channels()
	if channels < 1 || channels > 4 {
		return fmt.Errorf("%w: %d channels", errs.ErrUnsupportedFormat, channels)
	}

	// Check for reasonable size limits (prevent memory issues)
	const maxDimension = 16384
	if mat.Cols() > maxDimension || mat.Rows() > maxDimension {
		return fmt.Errorf("image too large: %dx%d (max: %d)", mat.Cols(), mat.Rows(), maxDimension)
	}

	return nil
}
