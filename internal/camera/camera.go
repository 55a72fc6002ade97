// Still capture for the booth
package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	errs "photobooth/internal/errors"
)

// ImageStore reads and writes image files
type ImageStore interface {
	LoadImage(path string) (gocv.Mat, error)
	SaveImage(mat gocv.Mat, path string) error
}

// Options shared by both cameras
type Options struct {
	Width  int
	Height int
	HFlip  bool
	Warmup int
}

// DeviceCamera grabs a frame from a V4L2 device. The device is opened
// for each capture and released afterwards.
type DeviceCamera struct {
	mu     sync.Mutex
	device int
	opts   Options
	store  ImageStore
	logger logrus.FieldLogger
}

func NewDeviceCamera(device int, opts Options, store ImageStore, logger logrus.FieldLogger) *DeviceCamera {
	return &DeviceCamera{
		device: device,
		opts:   opts,
		store:  store,
		logger: logger.WithField("component", "camera"),
	}
}

// Capture writes one mirrored frame to path
func (c *DeviceCamera) Capture(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	webcam, err := gocv.OpenVideoCapture(c.device)
	if err != nil {
		return fmt.Errorf("%w: open device %d: %v", errs.ErrDeviceNotOpened, c.device, err)
	}
	defer webcam.Close()

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(c.opts.Width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(c.opts.Height))

	frame := gocv.NewMat()
	defer frame.Close()

	// auto exposure settles over the first frames
	for i := 0; i <= c.opts.Warmup; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ok := webcam.Read(&frame); !ok {
			return fmt.Errorf("%w: device %d returned no frame", errs.ErrCaptureFailed, c.device)
		}
	}
	if frame.Empty() {
		return fmt.Errorf("%w: empty frame from device %d", errs.ErrCaptureFailed, c.device)
	}

	c.logger.WithFields(logrus.Fields{
		"device": c.device,
		"width":  frame.Cols(),
		"height": frame.Rows(),
	}).Debug("Frame captured")

	return finish(frame, c.opts, c.store, path)
}

// FileCamera serves a prepared image instead of a device
type FileCamera struct {
	mu     sync.Mutex
	source string
	opts   Options
	store  ImageStore
	logger logrus.FieldLogger
}

func NewFileCamera(source string, opts Options, store ImageStore, logger logrus.FieldLogger) *FileCamera {
	return &FileCamera{
		source: source,
		opts:   opts,
		store:  store,
		logger: logger.WithField("component", "camera"),
	}
}

// Capture re-encodes the source image to path
func (c *FileCamera) Capture(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	frame, err := c.store.LoadImage(c.source)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrCaptureFailed, err)
	}
	defer frame.Close()

	c.logger.WithField("source", c.source).Debug("Frame loaded from file")
	return finish(frame, c.opts, c.store, path)
}

// finish resizes and mirrors frame as configured and writes it
func finish(frame gocv.Mat, opts Options, store ImageStore, path string) error {
	out := frame.Clone()
	defer func() { out.Close() }()

	if opts.Width > 0 && opts.Height > 0 && (out.Cols() != opts.Width || out.Rows() != opts.Height) {
		resized := gocv.NewMat()
		gocv.Resize(out, &resized, image.Pt(opts.Width, opts.Height), 0, 0, gocv.InterpolationArea)
		out.Close()
		out = resized
	}

	if opts.HFlip {
		flipped := gocv.NewMat()
		gocv.Flip(out, &flipped, 1)
		out.Close()
		out = flipped
	}

	if err := store.SaveImage(out, path); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrCaptureFailed, err)
	}
	return nil
}
