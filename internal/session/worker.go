// Capture, variant and packaging worker
package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"photobooth/internal/core"
	"photobooth/internal/delivery"
	errs "photobooth/internal/errors"
	"photobooth/internal/variants"
)

// Camera writes one still to path
type Camera interface {
	Capture(ctx context.Context, path string) error
}

// SourceLoader reads the capture back as a source image
type SourceLoader interface {
	LoadSource(path string) (*core.SourceImage, error)
}

// VariantProducer renders the batch of variants
type VariantProducer interface {
	Produce(ctx context.Context, src *core.SourceImage, dir string) (*variants.Batch, error)
}

// Packager archives a variant directory for download
type Packager interface {
	Package(srcDir string) (*delivery.Package, error)
}

// Worker runs the blocking part of a session: capture, variants and
// packaging. It owns the camera exclusively.
type Worker struct {
	camera      Camera
	loader      SourceLoader
	producer    VariantProducer
	packager    Packager
	capturePath string
	variantDir  string
	logger      logrus.FieldLogger
}

func NewWorker(camera Camera, loader SourceLoader, producer VariantProducer, packager Packager, capturePath, variantDir string, logger logrus.FieldLogger) *Worker {
	return &Worker{
		camera:      camera,
		loader:      loader,
		producer:    producer,
		packager:    packager,
		capturePath: capturePath,
		variantDir:  variantDir,
		logger:      logger,
	}
}

// Run serves capture requests one after another until ctx ends
func (w *Worker) Run(ctx context.Context, requests <-chan struct{}, post func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-requests:
			post(w.session(ctx, post))
		}
	}
}

// session runs one capture to completion and returns the final event
func (w *Worker) session(ctx context.Context, post func(Event)) Event {
	start := time.Now()

	if err := w.camera.Capture(ctx, w.capturePath); err != nil {
		return failed(errs.WrapHardware(err, "Worker", "session", "capture"))
	}
	post(Event{Kind: EventCaptureDone})

	src, err := w.loader.LoadSource(w.capturePath)
	if err != nil {
		return failed(errs.WrapHardware(err, "Worker", "session", "load capture"))
	}
	defer src.Close()

	batch, err := w.producer.Produce(ctx, src, w.variantDir)
	if err != nil {
		return failed(err)
	}

	pkg, err := w.packager.Package(w.variantDir)
	if err != nil {
		return failed(err)
	}

	w.logger.WithFields(logrus.Fields{
		"variants": len(batch.Paths),
		"archive":  pkg.ArchiveName,
		"duration": time.Since(start).String(),
	}).Info("Session ready for delivery")

	return Event{Kind: EventDeliveryReady, Batch: batch, Package: pkg}
}

func failed(err error) Event {
	return Event{Kind: EventSessionFailed, Err: err}
}
