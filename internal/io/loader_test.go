package io

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	errs "photobooth/internal/errors"
)

func TestImageLoader_RoundTrip(t *testing.T) {
	logger, _ := test.NewNullLogger()
	loader := NewImageLoader(logger)

	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 12, 16, gocv.MatTypeCV8UC3)
	defer mat.Close()

	path := filepath.Join(t.TempDir(), "capture.png")
	require.NoError(t, loader.SaveImage(mat, path))
	require.NoError(t, loader.ValidateImageFile(path))

	src, err := loader.LoadSource(path)
	require.NoError(t, err)
	defer src.Close()

	meta := src.Metadata()
	assert.Equal(t, 16, meta.Width)
	assert.Equal(t, 12, meta.Height)
	assert.Equal(t, "png", meta.Format)

	loaded := src.Mat()
	defer loaded.Close()
	px := loaded.GetVecbAt(3, 3)
	assert.Equal(t, []uint8{10, 20, 30}, []uint8{px[0], px[1], px[2]})
}

func TestImageLoader_JPEG(t *testing.T) {
	logger, _ := test.NewNullLogger()
	loader := NewImageLoader(logger)

	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 32, 32, gocv.MatTypeCV8UC3)
	defer mat.Close()

	path := filepath.Join(t.TempDir(), "1.jpg")
	require.NoError(t, loader.SaveImage(mat, path))

	loaded, err := loader.LoadImage(path)
	require.NoError(t, err)
	defer loaded.Close()
	assert.Equal(t, 32, loaded.Cols())
}

func TestImageLoader_Errors(t *testing.T) {
	logger, _ := test.NewNullLogger()
	loader := NewImageLoader(logger)
	dir := t.TempDir()

	_, err := loader.LoadImage(filepath.Join(dir, "capture.gif"))
	assert.ErrorIs(t, err, errs.ErrUnsupportedFormat)

	_, err = loader.LoadImage(filepath.Join(dir, "missing.jpg"))
	assert.ErrorIs(t, err, errs.ErrEmptyImage)

	empty := gocv.NewMat()
	defer empty.Close()
	assert.ErrorIs(t, loader.SaveImage(empty, filepath.Join(dir, "x.jpg")), errs.ErrEmptyImage)

	assert.Error(t, loader.ValidateImageFile(filepath.Join(dir, "missing.jpg")))
}
