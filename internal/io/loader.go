// Image loading and saving functionality
package io

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"photobooth/internal/core"
	errs "photobooth/internal/errors"
)

// DefaultJPEGQuality is used for every variant written to disk
const DefaultJPEGQuality = 95

// ImageLoader handles image file operations
type ImageLoader struct {
	logger  logrus.FieldLogger
	quality int
}

func NewImageLoader(logger logrus.FieldLogger) *ImageLoader {
	return &ImageLoader{
		logger:  logger,
		quality: DefaultJPEGQuality,
	}
}

func (il *ImageLoader) LoadImage(path string) (gocv.Mat, error) {
	il.logger.WithField("filepath", path).Debug("Loading image")

	if !il.isSupportedImageFormat(path) {
		return gocv.NewMat(), fmt.Errorf("%w: %s", errs.ErrUnsupportedFormat, path)
	}

	// Load image using OpenCV
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("%w: failed to load image: %s", errs.ErrEmptyImage, path)
	}

	il.logger.WithFields(logrus.Fields{
		"filepath": path,
		"width":    mat.Cols(),
		"height":   mat.Rows(),
		"channels": mat.Channels(),
	}).Debug("Image loaded successfully")

	return mat, nil
}

// LoadSource reads the capture at path into a shareable source image
func (il *ImageLoader) LoadSource(path string) (*core.SourceImage, error) {
	mat, err := il.LoadImage(path)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	return core.NewSourceImage(mat, path)
}

func (il *ImageLoader) SaveImage(mat gocv.Mat, path string) error {
	il.logger.WithField("filepath", path).Debug("Saving image")

	if mat.Empty() {
		return errs.ErrEmptyImage
	}

	if !il.isSupportedImageFormat(path) {
		return fmt.Errorf("%w: %s", errs.ErrUnsupportedFormat, path)
	}

	var ok bool
	if ext := getFileExtension(path); ext == ".jpg" || ext == ".jpeg" {
		ok = gocv.IMWriteWithParams(path, mat, []int{int(gocv.IMWriteJpegQuality), il.quality})
	} else {
		ok = gocv.IMWrite(path, mat)
	}
	if !ok {
		return fmt.Errorf("failed to save image: %s", path)
	}

	il.logger.WithFields(logrus.Fields{
		"filepath": path,
		"width":    mat.Cols(),
		"height":   mat.Rows(),
	}).Debug("Image saved successfully")

	return nil
}

func (il *ImageLoader) isSupportedImageFormat(path string) bool {
	ext := getFileExtension(path)
	supportedFormats := []string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".bmp"}

	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}

	return false
}

func getFileExtension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// ValidateImageFile checks that path exists and decodes to a usable image
func (il *ImageLoader) ValidateImageFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if !il.isSupportedImageFormat(path) {
		return fmt.Errorf("%w: %s", errs.ErrUnsupportedFormat, path)
	}

	mat := gocv.IMRead(path, gocv.IMReadUnchanged)
	defer mat.Close()

	if mat.Empty() {
		return fmt.Errorf("invalid or corrupted image file: %s", path)
	}

	return core.ValidateImage(mat)
}
